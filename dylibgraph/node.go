package dylibgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Node is one Mach-O file participating in the bundle: the DarwinFile /
// Dependency analog.
type Node struct {
	// SourcePath is the absolute, symlink-resolved path on the build host.
	// Immutable once set.
	SourcePath string
	// CopiedPath is the absolute path this file will live at in the
	// bundle. Assigned once by Tracker.RecordCopy.
	CopiedPath string
	// Referrer is the node that first introduced this one into the
	// graph, or nil for a root. Never mutated after construction, so the
	// referrer chain can never become a traversal cycle even if the
	// underlying Mach-O files reference each other circularly.
	Referrer *Node

	// IsMachOFile is false for a non-Mach-O file handed to the resolver;
	// such a node carries no commands or edges.
	IsMachOFile bool

	// Commands is every parsed load command, in file order.
	Commands []Command
	// LoadReferences is the subset of Commands that load a library.
	LoadReferences []Command
	// RpathEntries is the subset of Commands that add a search path.
	RpathEntries []Command

	// outgoingEdges maps a reference key (resolved path if known, else
	// the raw token) to its Edge. Order of insertion is preserved in
	// edgeOrder for deterministic iteration.
	outgoingEdges map[string]*Edge
	edgeOrder     []string

	opts Options

	searchPath         []string
	searchPathComputed bool
}

// newNode constructs the Node for path, recording referrer as the node
// that introduced it. Mirrors DarwinFile.__init__ in darwintools.py.
func newNode(path string, referrer *Node, opts Options) (*Node, error) {
	canonical, err := canonicalize(path)
	if err != nil {
		return nil, newErr(KindParseError, path, "could not resolve path", err)
	}

	n := &Node{
		SourcePath:    canonical,
		Referrer:      referrer,
		opts:          opts,
		outgoingEdges: make(map[string]*Edge),
	}

	if !IsMachO(canonical) {
		return n, nil
	}
	n.IsMachOFile = true

	commands, err := LoadCommands(canonical)
	if err != nil {
		return nil, err
	}
	n.Commands = commands
	for _, c := range commands {
		switch c.Kind {
		case KindLoadDylib:
			n.LoadReferences = append(n.LoadReferences, c)
		case KindRpath:
			n.RpathEntries = append(n.RpathEntries, c)
		}
	}

	// Compute the search path before resolving load commands: @rpath
	// resolution below needs it.
	n.EffectiveSearchPath()

	for _, lc := range n.LoadReferences {
		resolved, err := resolveToken(lc.Path, n)
		if err != nil {
			return nil, err
		}

		e := &Edge{Owner: n, RawToken: lc.Path, Weak: lc.Weak, ResolvedPath: resolved}
		key := e.key()
		if _, exists := n.outgoingEdges[key]; exists {
			return nil, newErr(KindCollidingReferences, n.SourcePath,
				fmt.Sprintf("multiple dynamic libraries resolved to %s", key), nil)
		}
		n.outgoingEdges[key] = e
		n.edgeOrder = append(n.edgeOrder, key)
	}

	return n, nil
}

func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// EffectiveSearchPath returns the ordered list of absolute directories in
// effect for @rpath resolution from this node: the referrer's effective
// search path concatenated with this node's own rpath entries
// (referrer-first, self-last). Computed once and
// cached; later graph mutations cannot change it.
func (n *Node) EffectiveSearchPath() []string {
	if n.searchPathComputed {
		return n.searchPath
	}

	var own []string
	for _, rp := range n.RpathEntries {
		var dir string
		switch {
		case IsLoaderPath(rp.Path):
			dir = resolveLoaderPath(rp.Path, n)
		case IsExecutablePath(rp.Path):
			dir = resolveExecutablePath(rp.Path, n)
		case filepath.IsAbs(rp.Path):
			dir = rp.Path
		default:
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			own = append(own, dir)
		}
	}

	var combined []string
	if n.Referrer != nil {
		combined = append(combined, n.Referrer.EffectiveSearchPath()...)
	}
	combined = append(combined, own...)

	n.searchPath = combined
	n.searchPathComputed = true
	return combined
}

// OutgoingEdges returns every outgoing Edge of this node, in the order
// their load commands appeared in the binary.
func (n *Node) OutgoingEdges() []*Edge {
	edges := make([]*Edge, 0, len(n.edgeOrder))
	for _, key := range n.edgeOrder {
		edges = append(edges, n.outgoingEdges[key])
	}
	return edges
}

// EdgeForKey returns the edge stored under key (a resolved path or raw
// token), and whether it was found.
func (n *Node) EdgeForKey(key string) (*Edge, bool) {
	e, ok := n.outgoingEdges[key]
	return e, ok
}

// Dependencies returns every outgoing edge's resolved path, skipping
// edges that are still unresolved.
func (n *Node) Dependencies() []string {
	var deps []string
	for _, e := range n.OutgoingEdges() {
		if e.IsResolved() {
			deps = append(deps, e.ResolvedPath)
		}
	}
	return deps
}

// Depth returns how deep this node sits in the referrer chain (0 for a
// root). Recovered from cx_Freeze's DarwinFile.fileReferenceDepth.
func (n *Node) Depth() int {
	if n.Referrer != nil {
		return n.Referrer.Depth() + 1
	}
	return 0
}

// DumpInfo renders a human-readable diagnostic dump of this node and,
// recursively, its referrer chain: its commands, its rpath commands, its
// computed search path, and (if any) the file that referenced it.
// Recovered from cx_Freeze's DarwinFile.printFileInformation; used by
// Tracker.Finalize when it has to report KindUnresolvedAfterFinalize.
func (n *Node) DumpInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] File: %s\n", n.Depth(), n.SourcePath)

	b.WriteString("  Commands:\n")
	if len(n.Commands) == 0 {
		b.WriteString("    [None]\n")
	} else {
		for _, c := range n.Commands {
			fmt.Fprintf(&b, "    %s\n", describeCommand(c))
		}
	}

	b.WriteString("  RPath commands:\n")
	if len(n.RpathEntries) == 0 {
		b.WriteString("    [None]\n")
	} else {
		for _, c := range n.RpathEntries {
			fmt.Fprintf(&b, "    %s\n", describeCommand(c))
		}
	}

	b.WriteString("  Calculated search path:\n")
	sp := n.EffectiveSearchPath()
	if len(sp) == 0 {
		b.WriteString("    [None]\n")
	} else {
		for _, p := range sp {
			fmt.Fprintf(&b, "    %s\n", p)
		}
	}

	if n.Referrer != nil {
		b.WriteString("Referenced from:\n")
		b.WriteString(n.Referrer.DumpInfo())
	}
	return b.String()
}
