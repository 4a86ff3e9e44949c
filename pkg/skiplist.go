package nanodc

import (
	"strings"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// foldName is the case-insensitive ordering key for directory and file names.
func foldName(name string) string {
	return strings.ToLower(name)
}

// nameList keeps the children or files of a Directory ordered by folded name.
// Names that differ only by case share one key, so the list also enforces
// case-insensitive uniqueness.
type nameList[T any] struct {
	skiplist *zcsl.ZeroCopySkiplist[T, string, string]
}

func newNameList[T any](nameOf func(*T) string) *nameList[T] {
	getKey := func(item *T) string {
		return foldName(nameOf(item))
	}
	getSize := func(item *T) int {
		return len(nameOf(item))
	}

	return &nameList[T]{
		skiplist: zcsl.MakeZeroCopySkiplist[T, string, string](
			skiplistMaxLevels,
			getKey,
			getSize,
			strings.Compare,
		),
	}
}

// Get returns the item whose name folds to the same key as name, or nil.
func (nl *nameList[T]) Get(name string) *T {
	node, _ := nl.skiplist.Find(foldName(name))
	if node == nil {
		return nil
	}
	return node.Item()
}

// Insert adds item unless an item with the same folded name exists.
func (nl *nameList[T]) Insert(item *T, name string) bool {
	if nl.Get(name) != nil {
		return false
	}
	return nl.skiplist.Insert(item, TreeContext)
}

// Remove deletes the item with the given name.
func (nl *nameList[T]) Remove(name string) bool {
	return nl.skiplist.Delete(foldName(name))
}

// Len returns the number of items.
func (nl *nameList[T]) Len() int {
	return nl.skiplist.Length()
}

// ForEach visits items in case-insensitive name order until fn returns false.
func (nl *nameList[T]) ForEach(fn func(*T) bool) {
	for current := nl.skiplist.First(); current != nil; current = current.Next() {
		if !fn(current.Item()) {
			return
		}
	}
}
