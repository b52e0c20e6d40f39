// Package tree holds the transient knowledge tree produced by one generation
// run, its structural validator and the parser for model output.
package tree

import "fmt"

const (
	TypeRoot   = "root"
	TypeBranch = "branch"
	TypeLeaf   = "leaf"
)

// Node is one node of a generated knowledge tree. Keys are unique within a run.
type Node struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	Description  string  `json:"description"`
	Type         string  `json:"type"`
	IsExpandable bool    `json:"isExpandable"`
	Children     []*Node `json:"children"`
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n *Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += Count(c)
	}
	return total
}

// Depth returns the number of levels in the tree; a lone root has depth 1.
func Depth(n *Node) int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		deepest = max(deepest, Depth(c))
	}
	return deepest + 1
}

// Flatten lists every node in pre-order.
func Flatten(n *Node) []*Node {
	if n == nil {
		return nil
	}
	out := []*Node{n}
	for _, c := range n.Children {
		out = append(out, Flatten(c)...)
	}
	return out
}

// Walk visits every node in pre-order with its distance from the root.
func Walk(n *Node, fn func(node *Node, depth int)) {
	var visit func(*Node, int)
	visit = func(node *Node, depth int) {
		if node == nil {
			return
		}
		fn(node, depth)
		for _, c := range node.Children {
			visit(c, depth+1)
		}
	}
	visit(n, 0)
}

// EnsureUniqueKeys fills blank keys and suffixes duplicates so that every key
// in the tree is distinct. It returns the number of keys rewritten.
func EnsureUniqueKeys(root *Node) int {
	seen := map[string]bool{}
	rewritten := 0
	seq := 0
	Walk(root, func(n *Node, _ int) {
		seq++
		key := n.Key
		if key == "" {
			key = fmt.Sprintf("node_%d", seq)
		}
		base := key
		for i := 2; seen[key]; i++ {
			key = fmt.Sprintf("%s_%d", base, i)
		}
		if key != n.Key {
			n.Key = key
			rewritten++
		}
		seen[key] = true
	})
	return rewritten
}
