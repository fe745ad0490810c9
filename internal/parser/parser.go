// # internal/parser/parser.go
package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// pythonLanguage is shared by every parser in the pool. tree-sitter language
// values are immutable and safe for concurrent use.
var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

var pool = NewPool(pythonLanguage)

// SyntaxError reports that the source could not be parsed into a usable tree.
// Line is 1-based and 0 when the failure position is unknown.
type SyntaxError struct {
	Line   int
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

// Result owns a parsed tree. Callers must Close it to release the native
// allocation once they are done walking Root.
type Result struct {
	Root *sitter.Node
	tree *sitter.Tree
}

func (r *Result) Close() {
	if r == nil || r.tree == nil {
		return
	}
	r.tree.Close()
	r.tree = nil
}

// Parse turns Python source into a syntax tree. A tree containing ERROR or
// MISSING nodes counts as a failed parse: the engine treats the source as
// unparseable rather than running structural rules over a broken tree.
func Parse(src []byte) (*Result, error) {
	sp := pool.Get()
	defer pool.Put(sp)

	tree := sp.Parse(src, nil)
	if tree == nil {
		return nil, &SyntaxError{Reason: "parser returned no tree"}
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, &SyntaxError{Reason: "parse produced no root node"}
	}
	if root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, &SyntaxError{Line: line, Reason: "invalid syntax"}
	}

	return &Result{Root: root, tree: tree}, nil
}

// firstErrorLine locates the first ERROR or MISSING node in document order.
func firstErrorLine(root *sitter.Node) int {
	line := 0
	var visit func(n *sitter.Node) bool
	visit = func(n *sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			line = Line(n)
			return true
		}
		if !n.HasError() {
			return false
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			if child := n.Child(i); child != nil && visit(child) {
				return true
			}
		}
		return false
	}
	visit(root)
	return line
}

// Line returns the node's 1-based start line.
func Line(n *sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

// EndLine returns the node's 1-based end line.
func EndLine(n *sitter.Node) int {
	return int(n.EndPosition().Row) + 1
}

// Text returns the source slice covered by the node.
func Text(src []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > end || end > uint(len(src)) {
		return ""
	}
	return string(src[start:end])
}
