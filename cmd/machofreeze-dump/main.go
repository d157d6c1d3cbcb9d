// Command machofreeze-dump reads back a JSON graph dump produced by
// machofreeze --json and pretty-prints it, the way jtanx/lddx's
// lddxprinter reads back a serialized DependencyGraph.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-freeze/machofreeze/dylibgraph"
)

func printSnapshot(nodes []dylibgraph.NodeSnapshot) {
	byPath := make(map[string]dylibgraph.NodeSnapshot, len(nodes))
	for _, n := range nodes {
		byPath[n.CopiedPath] = n
	}

	seen := make(map[string]bool)
	for _, n := range nodes {
		if n.Depth != 0 {
			continue // only print from roots; bound edges fill in the rest
		}
		seen[n.CopiedPath] = true
		fmt.Printf("%s:\n", n.SourcePath)
		printNode(n, byPath, seen, 1)
	}
}

func printNode(n dylibgraph.NodeSnapshot, byPath map[string]dylibgraph.NodeSnapshot, seen map[string]bool, depth int) {
	for _, e := range n.Edges {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		if e.IsCopied {
			if seen[e.TargetCopiedPath] {
				fmt.Printf("%s%s => %s (already seen)\n", indent, e.RawToken, e.TargetCopiedPath)
				continue
			}
			seen[e.TargetCopiedPath] = true
			fmt.Printf("%s%s => %s\n", indent, e.RawToken, e.TargetCopiedPath)
			if target, ok := byPath[e.TargetCopiedPath]; ok {
				printNode(target, byPath, seen, depth+1)
			}
		} else if e.ResolvedPath != "" {
			fmt.Printf("%s%s => %s (external)\n", indent, e.RawToken, e.ResolvedPath)
		} else {
			fmt.Printf("%s%s => (unresolved)\n", indent, e.RawToken)
		}
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Printf("Usage: %s dump.json\n", os.Args[0])
		os.Exit(1)
	}

	for _, arg := range os.Args[1:] {
		data, err := os.ReadFile(arg)
		if err != nil {
			fmt.Printf("Cannot read %s: %s\n", arg, err)
			os.Exit(1)
		}
		var nodes []dylibgraph.NodeSnapshot
		if err := json.Unmarshal(data, &nodes); err != nil {
			fmt.Printf("Cannot unmarshal %s: %s\n", arg, err)
			os.Exit(1)
		}
		printSnapshot(nodes)
	}
}
