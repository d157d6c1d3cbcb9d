package dylibgraph

import (
	"fmt"
	"io"
)

// PrintTree writes a depth-first dump of roots and, recursively, every
// node reachable through a bound (IsCopied) edge, marking repeats as
// "(already seen)" rather than re-descending into them. Recovered from
// cx_Freeze's printMachOFiles/_printFile.
func PrintTree(w io.Writer, roots []*Node) {
	seen := make(map[*Node]bool)
	for _, n := range roots {
		if !seen[n] {
			seen[n] = true
			printNode(w, n, seen, 0)
		}
	}
}

func printNode(w io.Writer, n *Node, seen map[*Node]bool, level int) {
	prefix := ""
	for i := 0; i < level; i++ {
		prefix += "|  "
	}
	fmt.Fprintf(w, "%s%s\n", prefix, n.SourcePath)

	for _, e := range n.OutgoingEdges() {
		if !e.IsCopied {
			continue
		}
		target := e.TargetNode
		if seen[target] {
			fmt.Fprintf(w, "%s|  %s (already seen)\n", prefix, target.SourcePath)
			continue
		}
		seen[target] = true
		printNode(w, target, seen, level+1)
	}
}
