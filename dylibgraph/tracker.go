package dylibgraph

import (
	"path/filepath"
)

// Tracker is process-wide state for one freeze operation: the
// DarwinFileTracker/DependencyGraph analog. It owns every
// Node for the lifetime of the freeze, indexed by both copied and source
// path, and finalizes unresolved edges once traversal is complete.
type Tracker struct {
	opts Options

	nodesByCopiedPath map[string]*Node
	nodesBySourcePath map[string]*Node
	order             []*Node
}

// NewTracker creates an empty Tracker for one freeze operation.
func NewTracker(opts Options) *Tracker {
	return &Tracker{
		opts:              opts,
		nodesByCopiedPath: make(map[string]*Node),
		nodesBySourcePath: make(map[string]*Node),
	}
}

// RecordCopy creates (or reuses) the Node for a file copied from
// sourcePath to copiedPath, with referrer as the node that introduced it
// (nil for a root).
//
//   - If copiedPath is already owned by a node whose source matches,
//     the call is idempotent: the existing node is returned, no new
//     node is built.
//   - If copiedPath is already owned by a node with a *different*
//     source, the second copy is refused with a logged copy-slot-conflict
//     warning (no error is returned); the first node is returned.
//   - If sourcePath already has a node recorded under a different
//     copiedPath, the second copy is likewise refused with a warning
//     and the first node is returned.
func (t *Tracker) RecordCopy(sourcePath, copiedPath string, referrer *Node) (*Node, error) {
	canonicalSource, err := canonicalize(sourcePath)
	if err != nil {
		return nil, newErr(KindParseError, sourcePath, "could not resolve path", err)
	}
	absCopied, err := filepath.Abs(copiedPath)
	if err != nil {
		return nil, newErr(KindParseError, copiedPath, "could not resolve copied path", err)
	}

	if existing, ok := t.nodesByCopiedPath[absCopied]; ok {
		if existing.SourcePath == canonicalSource {
			return existing, nil
		}
		LogWarn("*** WARNING ***\nAttempting to copy two files to %s\n"+
			"source 1: %s\nsource 2: %s\nUsing only source 1.",
			absCopied, existing.SourcePath, canonicalSource)
		return existing, nil
	}

	if existing, ok := t.nodesBySourcePath[canonicalSource]; ok {
		LogWarn("*** WARNING ***\n%s is already copied to %s; refusing to also copy it to %s.",
			canonicalSource, existing.CopiedPath, absCopied)
		return existing, nil
	}

	n, err := newNode(sourcePath, referrer, t.opts)
	if err != nil {
		return nil, err
	}
	n.CopiedPath = absCopied

	t.nodesByCopiedPath[absCopied] = n
	t.nodesBySourcePath[n.SourcePath] = n
	t.order = append(t.order, n)
	return n, nil
}

// GetNodeForCopied returns the node occupying copiedPath, if any.
func (t *Tracker) GetNodeForCopied(copiedPath string) (*Node, bool) {
	absCopied, err := filepath.Abs(copiedPath)
	if err != nil {
		return nil, false
	}
	n, ok := t.nodesByCopiedPath[absCopied]
	return n, ok
}

// Dependencies returns node's resolved outgoing reference paths.
func (t *Tracker) Dependencies(n *Node) []string {
	return n.Dependencies()
}

// IterCopied returns every copied node in insertion order, for
// deterministic traversal and output.
func (t *Tracker) IterCopied() []*Node {
	out := make([]*Node, len(t.order))
	copy(out, t.order)
	return out
}

// findByBasename looks for copied nodes whose source basename equals
// name, in insertion order.
func (t *Tracker) findByBasename(name string) []*Node {
	var candidates []*Node
	for _, n := range t.order {
		if filepath.Base(n.SourcePath) == name {
			candidates = append(candidates, n)
		}
	}
	return candidates
}

// Finalize implements the two-pass finalization algorithm: every
// not-yet-bound edge of every copied node is either bound to a node
// already in the graph (exact source-path match first, basename match as
// recovery), or left as an external reference, or reported as a fatal
// error.
func (t *Tracker) Finalize() error {
	for _, n := range t.order {
		for _, e := range n.OutgoingEdges() {
			if e.IsCopied {
				continue
			}

			if e.IsResolved() {
				canonicalTarget, err := canonicalize(e.ResolvedPath)
				if err != nil {
					// Resolved path no longer exists; leave as external.
					continue
				}
				if target, ok := t.nodesBySourcePath[canonicalTarget]; ok {
					e.Bind(target)
				}
				// Otherwise this is a legitimate external reference:
				// leave it unbound, rewriting will preserve it unchanged.
				continue
			}

			// Unresolved reference (an @rpath miss, or an absolute path
			// that does not exist): recover by basename.
			candidates := t.findByBasename(filepath.Base(e.RawToken))
			switch len(candidates) {
			case 0:
				LogError("Could not resolve RPath [%s] in file [%s], and could not find any likely intended reference.\n%s",
					e.RawToken, n.SourcePath, n.DumpInfo())
				return newErr(KindUnresolvedAfterFinalize, n.SourcePath,
					"finalize() failed to resolve "+e.RawToken, nil)
			case 1:
				LogWarn("In file [%s] guessing that %s resolved to %s.",
					n.SourcePath, e.RawToken, candidates[0].SourcePath)
				e.ResolvedPath = candidates[0].SourcePath
				e.guessed = true
				e.Bind(candidates[0])
			default:
				LogWarn("In file [%s], %s is ambiguous between %d candidates; choosing %s.",
					n.SourcePath, e.RawToken, len(candidates), candidates[0].SourcePath)
				e.ResolvedPath = candidates[0].SourcePath
				e.guessed = true
				e.Bind(candidates[0])
			}
		}
	}
	return nil
}
