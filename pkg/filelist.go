package nanodc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

const fileListHeader = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n"

// cachedList is the compressed full list of one share generation.
type cachedList struct {
	gen   uint64
	codec string
	data  []byte
	root  HashRef
}

// listWriter renders a tree as a FileListing document.
type listWriter struct {
	buf bytes.Buffer
}

func (w *listWriter) indent(depth int) {
	for i := 0; i < depth; i++ {
		w.buf.WriteByte('\t')
	}
}

func (w *listWriter) attr(name, value string) {
	w.buf.WriteByte(' ')
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteByte('"')
}

func (w *listWriter) open(base, generator string) {
	w.buf.WriteString(fileListHeader)
	w.buf.WriteString("<FileListing")
	w.attr("Version", FileListVersion)
	w.attr("Base", base)
	w.attr("Generator", generator)
	w.buf.WriteString(">\n")
}

func (w *listWriter) close() {
	w.buf.WriteString("</FileListing>\n")
}

// contents writes the subdirectories and hashed files of d at depth. When
// recursive is false subdirectories are written empty and marked Incomplete.
func (w *listWriter) contents(d *Directory, depth int, recursive bool) {
	d.Subdirectories(func(child *Directory) bool {
		w.indent(depth)
		w.buf.WriteString("<Directory")
		w.attr("Name", child.name)
		if !recursive {
			w.attr("Incomplete", "1")
			w.buf.WriteString("/>\n")
			return true
		}
		w.buf.WriteString(">\n")
		w.contents(child, depth+1, true)
		w.indent(depth)
		w.buf.WriteString("</Directory>\n")
		return true
	})

	d.Files(func(fe *FileEntry) bool {
		if fe.hash.IsZero() {
			return true
		}
		w.indent(depth)
		w.buf.WriteString("<File")
		w.attr("Name", fe.name)
		w.attr("Size", strconv.FormatInt(fe.size, 10))
		w.attr("TTH", fe.hash.String())
		w.buf.WriteString("/>\n")
		return true
	})
}

// renderList produces the list of d's contents with the given Base.
func renderList(d *Directory, base, generator string, recursive bool) []byte {
	var w listWriter
	w.open(base, generator)
	w.contents(d, 1, recursive)
	w.close()
	return w.buf.Bytes()
}

// GenerateFullList serialises the whole share, uncompressed.
func (m *ShareManager) GenerateFullList() []byte {
	generator := m.Config().List.Generator

	m.mu.RLock()
	defer m.mu.RUnlock()

	listGenerations.WithLabelValues("full").Inc()
	return renderList(m.live.root, "/", generator, true)
}

// GeneratePartialList serialises one virtual directory. Non-recursive lists
// contain its direct children only, with subdirectories marked Incomplete.
func (m *ShareManager) GeneratePartialList(virtualDir string, recursive bool) ([]byte, error) {
	generator := m.Config().List.Generator

	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := m.live.lookupDir(virtualDir)
	if dir == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotShared, virtualDir)
	}

	base := "/"
	if path := dir.VirtualPath(); path != "" {
		base = "/" + path + "/"
	}

	listGenerations.WithLabelValues("partial").Inc()
	return renderList(dir, base, generator, recursive), nil
}

// FullListBytes returns the full list compressed with the configured codec.
// The result is cached until the share changes and must not be modified.
func (m *ShareManager) FullListBytes() ([]byte, error) {
	list, err := m.cachedFullList()
	if err != nil {
		return nil, err
	}
	return list.data, nil
}

// ListRoot returns the tree hash of the compressed full list, which peers
// use to verify a downloaded list.
func (m *ShareManager) ListRoot() (HashRef, error) {
	list, err := m.cachedFullList()
	if err != nil {
		return HashRef{}, err
	}
	return list.root, nil
}

func (m *ShareManager) cachedFullList() (*cachedList, error) {
	settings := m.Config().List

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.listMu.Lock()
	defer m.listMu.Unlock()

	if c := m.listCache; c != nil && c.gen == m.listGen && c.codec == settings.Compression {
		return c, nil
	}

	raw := renderList(m.live.root, "/", settings.Generator, true)
	compressed, err := CompressList(settings.Compression, raw)
	if err != nil {
		return nil, err
	}
	listGenerations.WithLabelValues("compressed").Inc()

	m.listCache = &cachedList{
		gen:   m.listGen,
		codec: settings.Compression,
		data:  compressed,
		root:  (&TreeHasher{}).HashBytes(compressed),
	}
	VerboseLog(2, "Regenerated file list: %d bytes, %d compressed (%s)", len(raw), len(compressed), settings.Compression)
	return m.listCache, nil
}
