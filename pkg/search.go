package nanodc

import (
	"strings"
	"time"
)

// SearchQuery is either an exact-hash query (Hash set) or a term query.
type SearchQuery struct {
	// Hash selects an exact content lookup; every other field but
	// MaxResults is ignored.
	Hash *HashRef

	// Include terms must all occur in the virtual path, case-insensitively.
	Include []string
	// Exclude terms must not occur in the virtual path.
	Exclude []string
	// Extensions, when set, restricts files to these extensions (no dot).
	Extensions []string

	MinSize int64  // 0 means no lower bound
	MaxSize *int64 // nil means no upper bound; a zero limit matches empty files

	Type SearchType
	// DirectoriesOnly matches directories instead of files. A matching
	// directory is reported without looking inside it.
	DirectoriesOnly bool

	MaxResults int // 0 means unlimited
}

// SearchResult is one match.
type SearchResult struct {
	VirtualPath string
	Size        int64
	Hash        HashRef // zero for directories
	IsDirectory bool
}

// compiledQuery is a term query with lower-cased terms and extensions.
type compiledQuery struct {
	include    []string
	exclude    []string
	extensions map[string]bool
	minSize    int64
	maxSize    int64 // negative when unbounded
	fileType   SearchType
	dirsOnly   bool
	maxResults int
}

func compileQuery(q *SearchQuery) *compiledQuery {
	cq := &compiledQuery{
		include:    lowerTerms(q.Include),
		exclude:    lowerTerms(q.Exclude),
		minSize:    q.MinSize,
		maxSize:    -1,
		fileType:   q.Type,
		dirsOnly:   q.DirectoriesOnly || q.Type == TypeDirectory,
		maxResults: q.MaxResults,
	}
	if q.MaxSize != nil {
		cq.maxSize = *q.MaxSize
	}
	if cq.fileType == TypeDirectory || cq.fileType == TypeTTH {
		cq.fileType = TypeAny
	}
	if len(q.Extensions) > 0 {
		cq.extensions = make(map[string]bool, len(q.Extensions))
		for _, ext := range q.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				cq.extensions[ext] = true
			}
		}
	}
	return cq
}

func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.ToLower(term); term != "" {
			out = append(out, term)
		}
	}
	return out
}

// Search evaluates q against the live share. Results come in tree order
// (subdirectories before files, case-insensitive names), so an unchanged
// share always answers the same query the same way. Files that are not
// hashed yet never match.
func (m *ShareManager) Search(q SearchQuery) []SearchResult {
	start := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if q.Hash != nil {
		defer recordSearch("hash", start)
		return m.live.searchHash(*q.Hash, q.MaxResults)
	}

	defer recordSearch("terms", start)
	return m.live.search(compileQuery(&q))
}

func (s *shareSnapshot) searchHash(h HashRef, maxResults int) []SearchResult {
	var results []SearchResult
	for _, fe := range s.hashes.Lookup(h) {
		results = append(results, SearchResult{
			VirtualPath: fe.VirtualPath(),
			Size:        fe.size,
			Hash:        fe.hash,
		})
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
	}
	debugLog("search", "hash %s: %d results", h, len(results))
	return results
}

// search runs a term query. An include term the Bloom filter has never seen
// answers empty at once. The filter only knows single names, so terms that
// span a path separator skip that check.
func (s *shareSnapshot) search(q *compiledQuery) []SearchResult {
	for _, term := range q.include {
		if !strings.Contains(term, VirtualSeparator) && !s.bloom.MightContain(term) {
			bloomShortCircuits.Inc()
			debugLog("search", "bloom filter rules out %q", term)
			return nil
		}
	}

	st := &searchState{q: q}
	s.root.Subdirectories(func(d *Directory) bool {
		return st.visitDir(d, d.name, strings.ToLower(d.name))
	})
	debugLog("search", "include %v exclude %v: %d results", q.include, q.exclude, len(st.results))
	return st.results
}

type searchState struct {
	q       *compiledQuery
	results []SearchResult
}

// add records a result and reports whether the search should continue.
func (st *searchState) add(r SearchResult) bool {
	st.results = append(st.results, r)
	return st.q.maxResults <= 0 || len(st.results) < st.q.maxResults
}

func (st *searchState) matchesTerms(lowerPath string) bool {
	for _, term := range st.q.include {
		if !strings.Contains(lowerPath, term) {
			return false
		}
	}
	return !st.excluded(lowerPath)
}

func (st *searchState) excluded(lowerPath string) bool {
	for _, term := range st.q.exclude {
		if strings.Contains(lowerPath, term) {
			return true
		}
	}
	return false
}

// visitDir searches d; path is its virtual path and lowerPath the lower-cased
// copy. It returns false once MaxResults is reached.
func (st *searchState) visitDir(d *Directory, path, lowerPath string) bool {
	// every path below d contains lowerPath
	if st.excluded(lowerPath) {
		return true
	}

	if st.q.dirsOnly {
		if len(st.q.include) > 0 && st.matchesTerms(lowerPath) {
			return st.add(SearchResult{VirtualPath: path, Size: d.size, IsDirectory: true})
		}
	} else {
		if !d.HasType(st.q.fileType) {
			return true
		}
		if st.q.minSize > 0 && d.size < st.q.minSize {
			return true
		}
	}

	more := true
	d.Subdirectories(func(child *Directory) bool {
		more = st.visitDir(child, path+VirtualSeparator+child.name, lowerPath+VirtualSeparator+strings.ToLower(child.name))
		return more
	})
	if !more || st.q.dirsOnly {
		return more
	}

	d.Files(func(fe *FileEntry) bool {
		if st.matchesFile(fe, lowerPath+VirtualSeparator+strings.ToLower(fe.name)) {
			more = st.add(SearchResult{
				VirtualPath: path + VirtualSeparator + fe.name,
				Size:        fe.size,
				Hash:        fe.hash,
			})
		}
		return more
	})
	return more
}

func (st *searchState) matchesFile(fe *FileEntry, lowerPath string) bool {
	q := st.q
	if fe.hash.IsZero() {
		return false
	}
	if q.minSize > 0 && fe.size < q.minSize {
		return false
	}
	if q.maxSize >= 0 && fe.size > q.maxSize {
		return false
	}
	if q.fileType != TypeAny && fe.Type() != q.fileType {
		return false
	}
	if q.extensions != nil && !q.extensions[fileExtension(fe.name)] {
		return false
	}
	return st.matchesTerms(lowerPath)
}
