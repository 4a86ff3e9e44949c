package nanodc

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ShareMapping ties a virtual top-level name to a physical directory.
type ShareMapping struct {
	Virtual string
	Real    string
}

// NamespaceMap is the ordered set of share mappings. Virtual names are unique
// case-insensitively and each real path is mapped at most once.
type NamespaceMap struct {
	mappings []ShareMapping
}

// NewNamespaceMap creates an empty map.
func NewNamespaceMap() *NamespaceMap {
	return &NamespaceMap{}
}

// ValidateVirtual cleans a virtual share name. Path separators are stripped,
// surrounding whitespace trimmed, and empty or dot names rejected.
func ValidateVirtual(name string) (string, error) {
	cleaned := strings.NewReplacer("/", "", "\\", "").Replace(name)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("invalid virtual name %q", name)
	}
	return cleaned, nil
}

// normaliseReal makes a real path absolute and clean.
func normaliseReal(realPath string) (string, error) {
	abs, err := filepath.Abs(realPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", realPath, err)
	}
	return filepath.Clean(abs), nil
}

// Add maps realPath under virtual. It fails with ErrAlreadyShared when
// realPath is already mapped and ErrNameConflict when the virtual name is taken.
func (nm *NamespaceMap) Add(realPath, virtual string) error {
	virtual, err := ValidateVirtual(virtual)
	if err != nil {
		return err
	}
	realPath, err = normaliseReal(realPath)
	if err != nil {
		return err
	}

	for _, m := range nm.mappings {
		if m.Real == realPath {
			return fmt.Errorf("%w: %s is shared as %s", ErrAlreadyShared, realPath, m.Virtual)
		}
		if foldName(m.Virtual) == foldName(virtual) {
			return fmt.Errorf("%w: %s", ErrNameConflict, virtual)
		}
	}

	nm.mappings = append(nm.mappings, ShareMapping{Virtual: virtual, Real: realPath})
	return nil
}

// Remove deletes the mapping called virtual.
func (nm *NamespaceMap) Remove(virtual string) (ShareMapping, error) {
	for i, m := range nm.mappings {
		if foldName(m.Virtual) == foldName(virtual) {
			nm.mappings = append(nm.mappings[:i], nm.mappings[i+1:]...)
			return m, nil
		}
	}
	return ShareMapping{}, fmt.Errorf("%w: %s", ErrNotShared, virtual)
}

// Rename changes a mapping's virtual name in place.
func (nm *NamespaceMap) Rename(oldVirtual, newVirtual string) (string, error) {
	newVirtual, err := ValidateVirtual(newVirtual)
	if err != nil {
		return "", err
	}

	index := -1
	for i, m := range nm.mappings {
		if foldName(m.Virtual) == foldName(oldVirtual) {
			index = i
		}
	}
	if index < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotShared, oldVirtual)
	}
	for i, m := range nm.mappings {
		if i != index && foldName(m.Virtual) == foldName(newVirtual) {
			return "", fmt.Errorf("%w: %s", ErrNameConflict, newVirtual)
		}
	}

	nm.mappings[index].Virtual = newVirtual
	return newVirtual, nil
}

// Lookup finds the mapping for a virtual top-level name.
func (nm *NamespaceMap) Lookup(virtual string) (ShareMapping, bool) {
	for _, m := range nm.mappings {
		if foldName(m.Virtual) == foldName(virtual) {
			return m, true
		}
	}
	return ShareMapping{}, false
}

// ContainingMappings returns every mapping whose real root contains realPath,
// together with the slash separated path relative to that root.
func (nm *NamespaceMap) ContainingMappings(realPath string) ([]ShareMapping, []string) {
	var found []ShareMapping
	var rels []string
	for _, m := range nm.mappings {
		if !isPathContained(realPath, m.Real) {
			continue
		}
		rel, err := filepath.Rel(m.Real, realPath)
		if err != nil {
			continue
		}
		if rel == "." {
			rel = ""
		}
		found = append(found, m)
		rels = append(rels, filepath.ToSlash(rel))
	}
	return found, rels
}

// Mappings returns a copy of the mappings in insertion order.
func (nm *NamespaceMap) Mappings() []ShareMapping {
	out := make([]ShareMapping, len(nm.mappings))
	copy(out, nm.mappings)
	return out
}

// Len returns the number of mappings.
func (nm *NamespaceMap) Len() int {
	return len(nm.mappings)
}

// isPathContained checks if targetPath is contained within containerPath
func isPathContained(targetPath, containerPath string) bool {
	targetPath = filepath.Clean(targetPath)
	containerPath = filepath.Clean(containerPath)

	if !filepath.IsAbs(targetPath) {
		var err error
		targetPath, err = filepath.Abs(targetPath)
		if err != nil {
			return false
		}
	}

	if !filepath.IsAbs(containerPath) {
		var err error
		containerPath, err = filepath.Abs(containerPath)
		if err != nil {
			return false
		}
	}

	if targetPath == containerPath {
		return true
	}

	containerWithSep := containerPath
	if !strings.HasSuffix(containerWithSep, string(filepath.Separator)) {
		containerWithSep += string(filepath.Separator)
	}
	return strings.HasPrefix(targetPath, containerWithSep)
}
