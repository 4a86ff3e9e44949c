// Package nanodc provides the share index of a peer-to-peer file sharing client:
// a virtual namespace over local directories, content hashing, a Bloom-filtered
// search engine and the canonical XML file list exchanged with peers.
//
// # Core API
//
// The main entry point is ShareManager, which owns the namespace map, the
// directory tree and its indexes:
//
//	sm, err := nanodc.NewShareManager("/home/user/.nanodc", nil)
//	if err != nil {
//		return err
//	}
//	defer sm.Close()
//
// # Basic Operations
//
// Share a directory and build the index:
//
//	_, err = sm.AddShare("/srv/music", "Music")
//	result, err := sm.TriggerRefresh(ctx, nanodc.RefreshOptions{Blocking: true})
//
// Search the share:
//
//	results := sm.Search(nanodc.SearchQuery{Include: []string{"song"}})
//	for _, r := range results {
//		fmt.Printf("%s %d %s\n", r.VirtualPath, r.Size, r.Hash)
//	}
//
// Produce the compressed file list for a peer:
//
//	data, err := sm.FullListBytes()
//
// # Configuration
//
// Settings live in an ini file in the state directory (see LoadConfig).
// Enable debug output:
//
//	nanodc.SetDebugFlags("scan,refresh")
//	nanodc.SetVerboseLevel(2)
//
// # Concurrency
//
// Refreshes run on a single background goroutine which builds a new tree off
// to the side and swaps it in under a write lock. Searches, path resolution
// and list generation take the read lock and never observe a partial tree.
package nanodc
