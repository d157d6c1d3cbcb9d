package dylibgraph

// Edge is a directed reference from a Node to a library it loads, the
// MachOReference analog. It moves through the states
// Created -> Resolved? -> Bound -> Rewritten.
type Edge struct {
	// Owner is the Node whose load command produced this edge.
	Owner *Node
	// RawToken is the exact string embedded in the load command.
	RawToken string
	// Weak marks an LC_LOAD_WEAK_DYLIB/LC_LOAD_UPWARD_DYLIB reference.
	Weak bool

	// ResolvedPath is the absolute host path, once known. Set either at
	// construction (primary pass) or during Tracker.Finalize (recovery
	// pass via basename match); empty until then.
	ResolvedPath string
	// guessed records that ResolvedPath was filled in by finalize's
	// basename-recovery pass rather than the primary resolver, purely for
	// diagnostics.
	guessed bool

	// TargetNode is the Node this edge will point at after rewriting.
	// Nil until Bound.
	TargetNode *Node
	// IsCopied is true iff TargetNode is set.
	IsCopied bool

	// rewritten is set once RewriteAll has patched the owning binary for
	// this edge, making the Bound -> Rewritten transition observable.
	rewritten bool
}

// IsResolved reports whether ResolvedPath has been filled in, by either
// the primary resolver or finalize's recovery pass.
func (e *Edge) IsResolved() bool {
	return e.ResolvedPath != ""
}

// Bind attaches target as the node this edge refers to inside the bundle,
// transitioning the edge to Bound. It is idempotent:
// binding the same target twice is a no-op.
func (e *Edge) Bind(target *Node) {
	e.TargetNode = target
	e.IsCopied = true
}

// key returns the dictionary key used for an outgoing
// edge: the resolved path if known, otherwise the raw token.
func (e *Edge) key() string {
	if e.ResolvedPath != "" {
		return e.ResolvedPath
	}
	return e.RawToken
}
