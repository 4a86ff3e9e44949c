package nanodc

import "sort"

// DuplicateGroup represents a group of shared files with the same hash
type DuplicateGroup struct {
	Hash  string   `json:"hash"`
	Size  int64    `json:"size"`
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// FindDuplicates returns every hash shared by more than one file. Groups are
// ordered by wasted space (size times extra copies), largest first, then by
// hash; files within a group by virtual path.
func (m *ShareManager) FindDuplicates() []DuplicateGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []DuplicateGroup
	m.live.hashes.ForEach(func(h HashRef, entries []*FileEntry) bool {
		if len(entries) < 2 {
			return true
		}
		files := make([]string, 0, len(entries))
		for _, fe := range entries {
			files = append(files, fe.VirtualPath())
		}
		result = append(result, DuplicateGroup{
			Hash:  h.String(),
			Size:  entries[0].size,
			Files: files,
			Count: len(files),
		})
		return true
	})

	sort.Slice(result, func(i, j int) bool {
		wi := result[i].Size * int64(result[i].Count-1)
		wj := result[j].Size * int64(result[j].Count-1)
		if wi != wj {
			return wi > wj
		}
		return result[i].Hash < result[j].Hash
	})
	return result
}
