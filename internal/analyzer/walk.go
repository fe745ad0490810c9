// # internal/analyzer/walk.go
package analyzer

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Walk traverses the subtree rooted at node in pre-order, calling fn with
// each node and its depth relative to the start node. Returning false skips
// the node's children. Walking the same root twice yields the same sequence;
// a nil node is a no-op.
func Walk(node *sitter.Node, fn func(n *sitter.Node, depth int) bool) {
	walk(node, 0, fn)
}

func walk(n *sitter.Node, depth int, fn func(n *sitter.Node, depth int) bool) {
	if n == nil {
		return
	}
	if !fn(n, depth) {
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		walk(n.Child(i), depth+1, fn)
	}
}
