// Command machofreeze is a minimal example driver over the dylibgraph
// core: it copies a set of root binaries and their Mach-O dependencies
// into a destination folder, then rewrites install-name references so
// the result is relocatable. The package/module finder, bundle layout
// conventions, and inclusion policy that a real freeze tool would bring
// are out of scope for the core; this driver stands in for
// them with the simplest reasonable policy: follow every dependency not
// under an ignored prefix, flattening everything into one directory.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/go-freeze/machofreeze/dylibgraph"
)

type options struct {
	NoColor  bool `short:"n" long:"no-color" description:"Disable colorized output"`
	Quiet    bool `short:"q" long:"quiet" description:"Less verbose output"`
	Strict   bool `long:"strict" description:"Fail immediately on an unresolved @rpath reference instead of deferring to finalize"`
	Tree     bool `short:"t" long:"tree" description:"Print the dependency tree after freezing"`
	JSON     bool `short:"s" long:"json" description:"Dump the resulting graph in JSON format"`
	Dest     string   `short:"d" long:"dest" required:"true" description:"Destination folder to copy binaries into"`
	RootExe  string   `short:"e" long:"root-executable" description:"Directory used to resolve @executable_path instead of each file's own directory"`
	Ignored  []string `short:"i" long:"ignore-prefix" description:"A path prefix; dependencies under it are left as external references rather than copied"`
	NoIgnore bool     `long:"no-default-ignore" description:"Do not ignore /System and /usr/lib by default"`
}

func defaultIgnoredPrefixes(opts *options) []string {
	prefixes := append([]string{}, opts.Ignored...)
	if !opts.NoIgnore {
		prefixes = append(prefixes, "/System", "/usr/lib")
	}
	return prefixes
}

func isIgnored(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(path) >= len(p) && path[:len(p)] == p {
			return true
		}
	}
	return false
}

func run(opts *options, roots []string) error {
	dylibgraph.LogInit(opts.NoColor, opts.Quiet)
	dylibgraph.LogInfo("Host machine: %s", dylibgraph.HostMachine())

	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tracker := dylibgraph.NewTracker(dylibgraph.Options{
		Strict:         opts.Strict,
		RootExecutable: opts.RootExe,
	})
	prefixes := defaultIgnoredPrefixes(opts)

	var rootNodes []*dylibgraph.Node
	type work struct {
		node *dylibgraph.Node
	}
	var worklist []work
	visited := make(map[*dylibgraph.Node]bool)

	for _, root := range roots {
		copiedPath := filepath.Join(dest, filepath.Base(root))
		n, err := tracker.RecordCopy(root, copiedPath, nil)
		if err != nil {
			return err
		}
		if err := copyFileInto(root, copiedPath); err != nil {
			return err
		}
		rootNodes = append(rootNodes, n)
		if !visited[n] {
			visited[n] = true
			worklist = append(worklist, work{n})
		}
	}

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		for _, dep := range item.node.Dependencies() {
			if isIgnored(dep, prefixes) {
				continue
			}
			copiedPath := filepath.Join(dest, filepath.Base(dep))
			child, err := tracker.RecordCopy(dep, copiedPath, item.node)
			if err != nil {
				return err
			}
			if !visited[child] {
				visited[child] = true
				if err := copyFileInto(child.SourcePath, child.CopiedPath); err != nil {
					return err
				}
				worklist = append(worklist, work{child})
			}
		}
	}

	if err := tracker.Finalize(); err != nil {
		return err
	}
	if err := tracker.RewriteAll(); err != nil {
		return err
	}

	if opts.Tree {
		dylibgraph.PrintTree(os.Stdout, rootNodes)
	}
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "\t")
		if err := enc.Encode(tracker.Snapshot()); err != nil {
			return err
		}
	}
	return nil
}

func copyFileInto(from, to string) error {
	if from == to {
		return nil
	}
	if _, err := os.Stat(to); err == nil {
		return nil
	}
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	return os.WriteFile(to, data, info.Mode()|0o200)
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	args, err := parser.Parse()
	if err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		dylibgraph.LogError("%s", err)
		os.Exit(1)
	}

	if len(args) == 0 {
		dylibgraph.LogError("no root binaries specified")
		os.Exit(1)
	}

	if err := run(&opts, args); err != nil {
		dylibgraph.LogError("%s", err)
		os.Exit(1)
	}
}
