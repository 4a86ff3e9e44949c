// dcshare manages a nanodc share from the command line: it maps directories
// into the virtual namespace, refreshes the index, searches it and writes the
// file list peers download.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	nanodc "github.com/mattkeenan/nanodc/pkg"
)

// globalOptions are accepted before the command name.
type globalOptions struct {
	stateDir  string
	verbose   int
	debug     string
	logFormat string
	format    string
	overrides []string
	ignore    []string
}

// command is one dcshare subcommand.
type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, opts *globalOptions, args []string) error
}

var commands []*command

func init() {
	commands = []*command{
		{"add", "add <real-path> <virtual-name>", "Share a directory under a virtual name", runAdd},
		{"remove", "remove <virtual-name>", "Stop sharing a directory", runRemove},
		{"rename", "rename <old-name> <new-name>", "Rename a share", runRename},
		{"list-shares", "list-shares", "Show the namespace map", runListShares},
		{"refresh", "refresh [--dirs-only]", "Rebuild the share index from disk", runRefresh},
		{"search", "search [options] <terms...>", "Search the share", runSearch},
		{"filelist", "filelist [options] [virtual-dir]", "Write the XML file list", runFileList},
		{"stats", "stats", "Show share statistics", runStats},
		{"resolve", "resolve <virtual-path|real-path>", "Map between virtual and real paths", runResolve},
		{"dupes", "dupes", "List files with identical content", runDupes},
		{"ignore", "ignore [virtual-path...]", "Show ignore patterns or test paths against them", runIgnore},
		{"serve", "serve [--metrics-addr ADDR]", "Keep the share refreshed and export metrics", runServe},
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dcshare: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	opts := &globalOptions{}

	flagSet := pflag.NewFlagSet("dcshare", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&opts.stateDir, "state-dir", defaultStateDir(), "directory holding config, hash cache and ignore file")
	flagSet.CountVarP(&opts.verbose, "verbose", "v", "increase verbosity (repeatable)")
	flagSet.StringVar(&opts.debug, "debug", "", "comma separated debug flags (scan,hash,search,refresh)")
	flagSet.StringVar(&opts.logFormat, "log-format", "console", "log output format (console|json)")
	flagSet.StringVar(&opts.format, "format", "human", "output format (human|json)")
	flagSet.StringArrayVarP(&opts.overrides, "option", "o", nil, "config override key:value (repeatable)")
	flagSet.StringArrayVar(&opts.ignore, "ignore", nil, "extra ignore regex for this run (repeatable)")
	help := flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() { showHelp(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *help {
		showHelp(flagSet)
		return nil
	}

	if opts.format != "human" && opts.format != "json" {
		return fmt.Errorf("invalid format '%s', must be 'human' or 'json'", opts.format)
	}

	level := "info"
	if opts.verbose > 2 {
		level = "debug"
	}
	logger, err := nanodc.NewLogger(opts.logFormat, level)
	if err != nil {
		return err
	}
	nanodc.SetLogger(logger)
	defer logger.Sync()
	nanodc.SetVerboseLevel(opts.verbose)
	if opts.debug != "" {
		nanodc.SetDebugFlags(opts.debug)
	}

	args := flagSet.Args()
	if len(args) == 0 {
		showUsage()
		return fmt.Errorf("missing command")
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			ctx, cancel := setupSignalHandler()
			defer cancel()
			return cmd.run(ctx, opts, args[1:])
		}
	}
	showUsage()
	return fmt.Errorf("unknown command '%s'", args[0])
}

func defaultStateDir() string {
	if dir := os.Getenv("NANODC_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nanodc"
	}
	return filepath.Join(home, ".nanodc")
}

func showUsage() {
	fmt.Fprintf(os.Stderr, "Usage: dcshare [global options] <command> [args]\n")
	fmt.Fprintf(os.Stderr, "Try 'dcshare --help' for more information.\n")
}

func showHelp(flagSet *pflag.FlagSet) {
	fmt.Printf("dcshare - share index of the nanodc peer-to-peer client\n\n")
	fmt.Printf("Usage: dcshare [global options] <command> [args]\n\n")

	fmt.Printf("COMMANDS:\n")
	width := 0
	for _, cmd := range commands {
		if len(cmd.usage) > width {
			width = len(cmd.usage)
		}
	}
	for _, cmd := range commands {
		fmt.Printf("  %-*s  %s\n", width, cmd.usage, cmd.summary)
	}

	fmt.Printf("\nGLOBAL OPTIONS:\n")
	fmt.Print(flagSet.FlagUsages())

	fmt.Printf("\nCONFIG OVERRIDES (-o key:value):\n")
	fmt.Printf("  %s\n", strings.Join([]string{
		"refresh_interval", "symlinks", "include_hidden", "max_depth",
		"algorithm", "workers", "buffer", "fp_rate", "ngram",
		"expected_terms", "compression", "generator", "level", "debug",
	}, ", "))

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  dcshare add ~/Music Music\n")
	fmt.Printf("  dcshare refresh\n")
	fmt.Printf("  dcshare search --type audio --min-size 1M live concert\n")
	fmt.Printf("  dcshare filelist --compressed > files.xml.zst\n")
	fmt.Printf("  dcshare --ignore '\\.nfo$' ignore Music/album/info.nfo\n")
	fmt.Printf("  dcshare -o workers:8 serve --metrics-addr :9184\n")
}

// openManager opens the share state named by the global options.
func openManager(opts *globalOptions, managerOpts *nanodc.ManagerOptions) (*nanodc.ShareManager, error) {
	if managerOpts == nil {
		managerOpts = &nanodc.ManagerOptions{}
	}
	managerOpts.Overrides = append(managerOpts.Overrides, opts.overrides...)
	managerOpts.IgnorePatterns = append(managerOpts.IgnorePatterns, opts.ignore...)
	return nanodc.NewShareManager(opts.stateDir, managerOpts)
}

// openRefreshed opens the share and brings the index up to date; unchanged
// files come from the hash cache.
func openRefreshed(ctx context.Context, opts *globalOptions) (*nanodc.ShareManager, error) {
	sm, err := openManager(opts, &nanodc.ManagerOptions{RefreshInterval: -1})
	if err != nil {
		return nil, err
	}
	result, err := sm.TriggerRefresh(ctx, nanodc.RefreshOptions{Blocking: true})
	if err != nil {
		sm.Close()
		return nil, fmt.Errorf("refresh failed: %w", err)
	}
	reportWarnings(result)
	return sm, nil
}

func reportWarnings(result *nanodc.RefreshResult) {
	if result == nil {
		return
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
	}
}
