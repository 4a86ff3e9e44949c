package nanodc

import (
	"fmt"
	"strings"
)

// FileEntry is a shared file. Everything but the hash is fixed at creation;
// the hash goes from zero (unknown) to a value when hashing completes.
type FileEntry struct {
	name   string
	size   int64
	hash   HashRef
	parent *Directory
}

func (fe *FileEntry) Name() string       { return fe.name }
func (fe *FileEntry) Size() int64        { return fe.size }
func (fe *FileEntry) Hash() HashRef      { return fe.hash }
func (fe *FileEntry) Parent() *Directory { return fe.parent }
func (fe *FileEntry) Type() SearchType   { return TypeOfName(fe.name) }

// VirtualPath returns the slash separated path from the root, e.g. "Music/song.mp3".
func (fe *FileEntry) VirtualPath() string {
	if fe.parent == nil {
		return fe.name
	}
	return joinVirtual(fe.parent.VirtualPath(), fe.name)
}

// Directory is a node of the virtual tree. It owns its children and files;
// parent is a plain back reference used for paths and aggregate propagation.
type Directory struct {
	name     string
	parent   *Directory
	depth    int
	maxDepth int

	children *nameList[Directory]
	files    *nameList[FileEntry]

	// aggregates over the whole subtree
	size       int64
	fileCount  int
	typeCounts [fileTypeCount]int
}

// NewRoot creates an empty tree root. maxDepth bounds how deep subdirectories
// may nest below it; values < 1 select DefaultMaxTreeDepth.
func NewRoot(maxDepth int) *Directory {
	if maxDepth < 1 {
		maxDepth = DefaultMaxTreeDepth
	}
	return newDirectory("", nil, maxDepth)
}

func newDirectory(name string, parent *Directory, maxDepth int) *Directory {
	d := &Directory{
		name:     name,
		parent:   parent,
		maxDepth: maxDepth,
		children: newNameList(func(d *Directory) string { return d.name }),
		files:    newNameList(func(fe *FileEntry) string { return fe.name }),
	}
	if parent != nil {
		d.depth = parent.depth + 1
	}
	return d
}

func (d *Directory) Name() string       { return d.name }
func (d *Directory) Parent() *Directory { return d.parent }
func (d *Directory) Depth() int         { return d.depth }
func (d *Directory) IsRoot() bool       { return d.parent == nil }

// Size returns the total size of all files below d.
func (d *Directory) Size() int64 { return d.size }

// FileCount returns the number of files below d.
func (d *Directory) FileCount() int { return d.fileCount }

// HasType reports whether any file below d is of type t. TypeDirectory is
// always present; TypeAny and TypeTTH match any non-empty directory.
func (d *Directory) HasType(t SearchType) bool {
	switch {
	case t == TypeDirectory:
		return true
	case t == TypeAny || t == TypeTTH:
		return d.fileCount > 0
	case int(t) < fileTypeCount:
		return d.typeCounts[t] > 0
	}
	return false
}

// TypeMask returns a bitmask with bit 1<<t set for every type present below d.
func (d *Directory) TypeMask() uint32 {
	mask := uint32(1) << TypeDirectory
	for t := 0; t < fileTypeCount; t++ {
		if d.typeCounts[t] > 0 {
			mask |= 1 << t
		}
	}
	return mask
}

// VirtualPath returns the slash separated path of d; the root is "".
func (d *Directory) VirtualPath() string {
	if d.parent == nil {
		return ""
	}
	names := make([]string, d.depth)
	for n := d; n.parent != nil; n = n.parent {
		names[n.depth-1] = n.name
	}
	return strings.Join(names, VirtualSeparator)
}

// FullPath returns the virtual path of a *Directory or *FileEntry.
func FullPath(node interface{ VirtualPath() string }) string {
	return node.VirtualPath()
}

// Subdirectory returns the child named name (case-insensitive) or nil.
func (d *Directory) Subdirectory(name string) *Directory {
	return d.children.Get(name)
}

// File returns the file named name (case-insensitive) or nil.
func (d *Directory) File(name string) *FileEntry {
	return d.files.Get(name)
}

// Subdirectories visits children in case-insensitive name order.
func (d *Directory) Subdirectories(fn func(*Directory) bool) {
	d.children.ForEach(fn)
}

// Files visits files in case-insensitive name order.
func (d *Directory) Files(fn func(*FileEntry) bool) {
	d.files.ForEach(fn)
}

// SubdirectoryCount returns the number of direct children.
func (d *Directory) SubdirectoryCount() int { return d.children.Len() }

// GetOrCreateSubdirectory returns the child called name, creating it when
// missing. Creating a child deeper than the tree's maximum depth fails with
// ErrPathTooDeep.
func (d *Directory) GetOrCreateSubdirectory(name string) (*Directory, error) {
	if child := d.children.Get(name); child != nil {
		return child, nil
	}
	if d.depth+1 > d.maxDepth {
		return nil, fmt.Errorf("%w: %s", ErrPathTooDeep, joinVirtual(d.VirtualPath(), name))
	}
	child := newDirectory(name, d, d.maxDepth)
	d.children.Insert(child, name)
	return child, nil
}

// AddFile creates a file in d and propagates its size and type to the root.
func (d *Directory) AddFile(name string, size int64, hash HashRef) (*FileEntry, error) {
	fe := &FileEntry{name: name, size: size, hash: hash, parent: d}
	if !d.files.Insert(fe, name) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, joinVirtual(d.VirtualPath(), name))
	}
	d.propagate(size, 1, fe.Type())
	return fe, nil
}

// RemoveFile removes the file called name and returns it.
func (d *Directory) RemoveFile(name string) (*FileEntry, error) {
	fe := d.files.Get(name)
	if fe == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, joinVirtual(d.VirtualPath(), name))
	}
	d.files.Remove(name)
	d.propagate(-fe.size, -1, fe.Type())
	return fe, nil
}

// RemoveSubdirectory detaches the child called name with its whole subtree.
func (d *Directory) RemoveSubdirectory(name string) (*Directory, error) {
	child := d.children.Get(name)
	if child == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, joinVirtual(d.VirtualPath(), name))
	}
	d.children.Remove(name)
	for n := d; n != nil; n = n.parent {
		n.size -= child.size
		n.fileCount -= child.fileCount
		for t := range n.typeCounts {
			n.typeCounts[t] -= child.typeCounts[t]
		}
	}
	child.parent = nil
	return child, nil
}

// renameSubdirectory changes a child's name keeping its contents.
func (d *Directory) renameSubdirectory(oldName, newName string) error {
	child := d.children.Get(oldName)
	if child == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, joinVirtual(d.VirtualPath(), oldName))
	}
	if other := d.children.Get(newName); other != nil && other != child {
		return fmt.Errorf("%w: %s", ErrDuplicateName, joinVirtual(d.VirtualPath(), newName))
	}
	d.children.Remove(oldName)
	child.name = newName
	d.children.Insert(child, newName)
	return nil
}

// propagate applies a file count/size delta from d up to the root. O(depth).
func (d *Directory) propagate(size int64, files int, t SearchType) {
	for n := d; n != nil; n = n.parent {
		n.size += size
		n.fileCount += files
		n.typeCounts[t] += files
	}
}

// Lookup walks a virtual path below d. It returns the directory or file it
// names; both are nil when the path does not exist.
func (d *Directory) Lookup(virtualPath string) (*Directory, *FileEntry) {
	parts := splitVirtual(virtualPath)
	current := d
	for i, part := range parts {
		if i == len(parts)-1 {
			if child := current.children.Get(part); child != nil {
				return child, nil
			}
			if fe := current.files.Get(part); fe != nil {
				return nil, fe
			}
			return nil, nil
		}
		current = current.children.Get(part)
		if current == nil {
			return nil, nil
		}
	}
	return current, nil
}

// walkFiles visits every file below d, directories first, in tree order.
func (d *Directory) walkFiles(fn func(*FileEntry)) {
	d.children.ForEach(func(child *Directory) bool {
		child.walkFiles(fn)
		return true
	})
	d.files.ForEach(func(fe *FileEntry) bool {
		fn(fe)
		return true
	})
}

// walkDirs visits d and every directory below it in tree order.
func (d *Directory) walkDirs(fn func(*Directory)) {
	fn(d)
	d.children.ForEach(func(child *Directory) bool {
		child.walkDirs(fn)
		return true
	})
}

func joinVirtual(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + VirtualSeparator + name
}

// splitVirtual splits a virtual path into components, tolerating leading,
// trailing and doubled separators as well as backslashes.
func splitVirtual(virtualPath string) []string {
	virtualPath = strings.ReplaceAll(virtualPath, "\\", VirtualSeparator)
	var parts []string
	for _, part := range strings.Split(virtualPath, VirtualSeparator) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
