package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	nanodc "github.com/mattkeenan/nanodc/pkg"
)

// newFlagSet creates the flag set of a subcommand.
func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("dcshare "+name, pflag.ContinueOnError)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runAdd(ctx context.Context, opts *globalOptions, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: dcshare add <real-path> <virtual-name>")
	}
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	mapping, err := sm.AddShare(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Shared %s as %s\n", mapping.Real, mapping.Virtual)
	return nil
}

func runRemove(ctx context.Context, opts *globalOptions, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dcshare remove <virtual-name>")
	}
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	return sm.RemoveShare(args[0])
}

func runRename(ctx context.Context, opts *globalOptions, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: dcshare rename <old-name> <new-name>")
	}
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	return sm.RenameShare(args[0], args[1])
}

func runListShares(ctx context.Context, opts *globalOptions, args []string) error {
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	shares := sm.Shares()
	if opts.format == "json" {
		return printJSON(shares)
	}
	for _, m := range shares {
		fmt.Printf("%s\t%s\n", m.Virtual, m.Real)
	}
	return nil
}

func runRefresh(ctx context.Context, opts *globalOptions, args []string) error {
	flagSet := newFlagSet("refresh")
	dirsOnly := flagSet.Bool("dirs-only", false, "publish the tree before hashing new files")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	result, err := sm.TriggerRefresh(ctx, nanodc.RefreshOptions{DirsOnly: *dirsOnly, Blocking: true})
	if err != nil {
		return err
	}
	reportWarnings(result)

	// A directories-only refresh keeps hashing after it returns; Close
	// interrupts that, so wait for the worker to go idle.
	for *dirsOnly && sm.RefreshState() != nanodc.RefreshIdle {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}

	if opts.format == "json" {
		warnings := make([]string, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			warnings = append(warnings, w.Error())
		}
		return printJSON(map[string]interface{}{
			"started":       result.Started,
			"finished":      result.Finished,
			"directories":   result.Directories,
			"files":         result.Files,
			"hashed_files":  result.HashedFiles,
			"cached_files":  result.CachedFiles,
			"pending_files": result.PendingFiles,
			"warnings":      warnings,
		})
	}
	fmt.Printf("Refreshed in %v: %d files in %d directories (%d hashed, %d cached, %d pending), %d warnings\n",
		result.Finished.Sub(result.Started).Round(time.Millisecond), result.Files, result.Directories,
		result.HashedFiles, result.CachedFiles, result.PendingFiles, len(result.Warnings))
	return nil
}

func runSearch(ctx context.Context, opts *globalOptions, args []string) error {
	flagSet := newFlagSet("search")
	minSize := flagSet.String("min-size", "", "minimum file size (e.g. 700M)")
	maxSize := flagSet.String("max-size", "", "maximum file size")
	typeName := flagSet.String("type", "any", "file type (any, audio, compressed, document, executable, picture, video, directory)")
	extensions := flagSet.StringSlice("ext", nil, "only these extensions")
	exclude := flagSet.StringSlice("exclude", nil, "terms that must not match")
	maxResults := flagSet.Int("max", 0, "stop after this many results (0 = all)")
	dirsOnly := flagSet.Bool("dirs", false, "match directories instead of files")
	tth := flagSet.String("tth", "", "search by content hash")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	query := nanodc.SearchQuery{
		Include:         flagSet.Args(),
		Exclude:         *exclude,
		Extensions:      *extensions,
		DirectoriesOnly: *dirsOnly,
		MaxResults:      *maxResults,
	}
	if *tth != "" {
		hash, err := nanodc.ParseHashRef(*tth)
		if err != nil {
			return err
		}
		query.Hash = &hash
	}
	fileType, ok := nanodc.ParseSearchType(*typeName)
	if !ok {
		return fmt.Errorf("unknown type '%s'", *typeName)
	}
	query.Type = fileType
	if *minSize != "" {
		size, err := nanodc.ParseHumanSize(*minSize)
		if err != nil {
			return err
		}
		query.MinSize = int64(size)
	}
	if *maxSize != "" {
		size, err := nanodc.ParseHumanSize(*maxSize)
		if err != nil {
			return err
		}
		limit := int64(size)
		query.MaxSize = &limit
	}
	if query.Hash == nil && len(query.Include) == 0 && !query.DirectoriesOnly && query.MinSize == 0 && query.MaxSize == nil && len(query.Extensions) == 0 {
		return fmt.Errorf("usage: dcshare search [options] <terms...>")
	}

	sm, err := openRefreshed(ctx, opts)
	if err != nil {
		return err
	}
	defer sm.Close()

	results := sm.Search(query)
	if opts.format == "json" {
		return printJSON(results)
	}
	for _, r := range results {
		if r.IsDirectory {
			fmt.Printf("%s/\t%s\n", r.VirtualPath, nanodc.FormatHumanSize(r.Size))
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", r.VirtualPath, nanodc.FormatHumanSize(r.Size), r.Hash)
	}
	return nil
}

func runFileList(ctx context.Context, opts *globalOptions, args []string) error {
	flagSet := newFlagSet("filelist")
	recursive := flagSet.Bool("recursive", true, "include subdirectory contents in a partial list")
	compressed := flagSet.Bool("compressed", false, "write the compressed full list")
	output := flagSet.StringP("output", "O", "", "write to this file instead of stdout")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	sm, err := openRefreshed(ctx, opts)
	if err != nil {
		return err
	}
	defer sm.Close()

	var data []byte
	switch {
	case flagSet.NArg() > 0:
		if *compressed {
			return fmt.Errorf("--compressed applies to the full list only")
		}
		data, err = sm.GeneratePartialList(flagSet.Arg(0), *recursive)
	case *compressed:
		data, err = sm.FullListBytes()
	default:
		data = sm.GenerateFullList()
	}
	if err != nil {
		return err
	}

	if *output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*output, data, 0644)
}

func runStats(ctx context.Context, opts *globalOptions, args []string) error {
	sm, err := openRefreshed(ctx, opts)
	if err != nil {
		return err
	}
	defer sm.Close()

	stats := sm.Stats()
	listRoot, err := sm.ListRoot()
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return printJSON(struct {
			nanodc.ShareStats
			ListRoot string `json:"list_root"`
		}{stats, listRoot.String()})
	}
	fmt.Printf("Shares:         %d\n", stats.Shares)
	fmt.Printf("Directories:    %d\n", stats.Directories)
	fmt.Printf("Files:          %d (%d pending hash)\n", stats.Files, stats.PendingFiles)
	fmt.Printf("Total size:     %s (%d bytes)\n", nanodc.FormatHumanSize(stats.TotalSize), stats.TotalSize)
	fmt.Printf("Unique hashes:  %d\n", stats.UniqueHashes)
	fmt.Printf("Bloom filter:   %d bits, %d hashes\n", stats.BloomBits, stats.BloomHashes)
	fmt.Printf("Hash cache:     %d entries\n", stats.HashCacheEntries)
	fmt.Printf("List root:      %s\n", listRoot)
	return nil
}

func runResolve(ctx context.Context, opts *globalOptions, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dcshare resolve <virtual-path|real-path>")
	}
	sm, err := openRefreshed(ctx, opts)
	if err != nil {
		return err
	}
	defer sm.Close()

	// Absolute paths and paths that exist on disk are physical
	if filepath.IsAbs(args[0]) {
		virtual, err := sm.ResolveReal(args[0])
		if err != nil {
			return err
		}
		fmt.Println(virtual)
		return nil
	}
	if _, statErr := os.Stat(args[0]); statErr == nil {
		if virtual, err := sm.ResolveReal(args[0]); err == nil {
			fmt.Println(virtual)
			return nil
		}
	}

	realPath, err := sm.ResolveVirtual(args[0])
	if err != nil {
		return err
	}
	fmt.Println(realPath)
	return nil
}

func runDupes(ctx context.Context, opts *globalOptions, args []string) error {
	sm, err := openRefreshed(ctx, opts)
	if err != nil {
		return err
	}
	defer sm.Close()

	groups := sm.FindDuplicates()
	if opts.format == "json" {
		return printJSON(groups)
	}
	for _, group := range groups {
		fmt.Printf("%s (%d copies of %s)\n", group.Hash, group.Count, nanodc.FormatHumanSize(group.Size))
		for _, file := range group.Files {
			fmt.Printf("  %s\n", file)
		}
	}
	return nil
}

func runIgnore(ctx context.Context, opts *globalOptions, args []string) error {
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return err
	}
	defer sm.Close()

	ignore := sm.Ignore()
	if len(args) == 0 {
		patterns := ignore.Patterns()
		if opts.format == "json" {
			return printJSON(patterns)
		}
		for _, p := range patterns {
			fmt.Println(p)
		}
		return nil
	}

	matches := make(map[string]bool, len(args))
	for _, path := range args {
		matches[path] = ignore.ShouldIgnore(path)
	}
	if opts.format == "json" {
		return printJSON(matches)
	}
	for _, path := range args {
		state := "shared"
		if matches[path] {
			state = "ignored"
		}
		fmt.Printf("%s\t%s\n", state, path)
	}
	return nil
}

func runServe(ctx context.Context, opts *globalOptions, args []string) error {
	flagSet := newFlagSet("serve")
	metricsAddr := flagSet.String("metrics-addr", "", "serve Prometheus metrics on this address")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshOnStart: true})
	if err != nil {
		return err
	}
	defer sm.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", nanodc.MetricsHandler())
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				nanodc.Warnf("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		nanodc.VerboseLog(1, "Serving metrics on %s", *metricsAddr)
	}

	fmt.Fprintf(os.Stderr, "Serving share from %s, press Ctrl+C to stop\n", sm.StateDir())
	<-ctx.Done()
	return nil
}
