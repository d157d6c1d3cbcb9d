package dylibgraph

// EdgeSnapshot is the JSON-serializable view of an Edge, used by the
// --json driver flag and read back by cmd/machofreeze-dump. Mirrors the
// shape of jtanx/lddx's Dependency struct.
type EdgeSnapshot struct {
	RawToken         string `json:"rawToken"`
	Weak             bool   `json:"weak,omitempty"`
	ResolvedPath     string `json:"resolvedPath,omitempty"`
	Guessed          bool   `json:"guessed,omitempty"`
	IsCopied         bool   `json:"isCopied"`
	TargetCopiedPath string `json:"targetCopiedPath,omitempty"`
}

// NodeSnapshot is the JSON-serializable view of a Node.
type NodeSnapshot struct {
	SourcePath string         `json:"sourcePath"`
	CopiedPath string         `json:"copiedPath"`
	IsMachO    bool           `json:"isMachO"`
	Depth      int            `json:"depth"`
	Edges      []EdgeSnapshot `json:"edges,omitempty"`
}

// Snapshot renders n as a NodeSnapshot for JSON output.
func (n *Node) Snapshot() NodeSnapshot {
	snap := NodeSnapshot{
		SourcePath: n.SourcePath,
		CopiedPath: n.CopiedPath,
		IsMachO:    n.IsMachOFile,
		Depth:      n.Depth(),
	}
	for _, e := range n.OutgoingEdges() {
		es := EdgeSnapshot{
			RawToken:     e.RawToken,
			Weak:         e.Weak,
			ResolvedPath: e.ResolvedPath,
			Guessed:      e.guessed,
			IsCopied:     e.IsCopied,
		}
		if e.TargetNode != nil {
			es.TargetCopiedPath = e.TargetNode.CopiedPath
		}
		snap.Edges = append(snap.Edges, es)
	}
	return snap
}

// Snapshot renders every copied node in t as a JSON-serializable list, in
// insertion order.
func (t *Tracker) Snapshot() []NodeSnapshot {
	nodes := t.IterCopied()
	out := make([]NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Snapshot())
	}
	return out
}
