// # internal/analyzer/scope.go
package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reviewd/internal/parser"
)

// scope tallies name bindings and reads for one lexical region: the module
// body or a single function body. Class bodies are transparent; their
// statements tally into the nearest enclosing scope.
type scope struct {
	function string // "" for the module scope
	parent   *scope

	bindings map[string]int // name -> first binding line
	order    []string       // binding names in first-seen order
	reads    map[string]bool
	declared map[string]bool // global/nonlocal declarations
}

func newScope(parent *scope, function string) *scope {
	return &scope{
		function: function,
		parent:   parent,
		bindings: make(map[string]int),
		reads:    make(map[string]bool),
		declared: make(map[string]bool),
	}
}

// bind records an assignment target. The first binding line wins; later
// reassignments do not move the diagnostic. Names declared global or
// nonlocal write into another scope and are not tracked here.
func (s *scope) bind(name string, line int) {
	if name == "" || s.declared[name] {
		return
	}
	if _, seen := s.bindings[name]; !seen {
		s.bindings[name] = line
		s.order = append(s.order, name)
	}
}

// read marks a name as used here and in every enclosing scope, mirroring
// lexical lookup: a read inside a nested function keeps an outer binding
// alive.
func (s *scope) read(name string) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.reads[name] = true
	}
}

// bindingExempt reports names the unused-variable rule never flags.
func bindingExempt(name string) bool {
	switch name {
	case "self", "cls":
		return true
	}
	return strings.HasPrefix(name, "_")
}

// collectScopes walks the tree once and returns every scope in creation
// order, the module scope first. Because reads propagate upward, the module
// scope's read set doubles as the file-wide "referenced anywhere" set used
// by the unused-import rule.
func collectScopes(root *sitter.Node, src []byte) []*scope {
	module := newScope(nil, "")
	scopes := []*scope{module}

	var visit func(n *sitter.Node, cur *scope)

	// visitChildren dispatches every child through visit.
	visitChildren := func(n *sitter.Node, cur *scope) {
		for i := uint(0); i < n.ChildCount(); i++ {
			if child := n.Child(i); child != nil {
				visit(child, cur)
			}
		}
	}

	// bindTargets records assignment-target identifiers as bindings.
	// Attribute and subscript targets do not bind; the names inside them
	// are reads (obj.x = 1 reads obj).
	var bindTargets func(n *sitter.Node, cur *scope)
	bindTargets = func(n *sitter.Node, cur *scope) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "identifier":
			cur.bind(parser.Text(src, n), parser.Line(n))
		case "pattern_list", "tuple_pattern", "list_pattern", "parenthesized_expression":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				bindTargets(n.NamedChild(i), cur)
			}
		case "list_splat_pattern":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				bindTargets(n.NamedChild(i), cur)
			}
		default:
			visit(n, cur)
		}
	}

	// skipTargets walks loop/with/except targets, which rebind names
	// without being assignments: plain identifiers neither bind nor read,
	// but attribute and subscript targets still read their bases.
	var skipTargets func(n *sitter.Node, cur *scope)
	skipTargets = func(n *sitter.Node, cur *scope) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "identifier":
			// Intentional no-op.
		case "pattern_list", "tuple_pattern", "list_pattern", "parenthesized_expression", "list_splat_pattern":
			for i := uint(0); i < n.NamedChildCount(); i++ {
				skipTargets(n.NamedChild(i), cur)
			}
		default:
			visit(n, cur)
		}
	}

	visit = func(n *sitter.Node, cur *scope) {
		switch n.Kind() {
		case "function_definition":
			name := parser.Text(src, n.ChildByFieldName("name"))
			fnScope := newScope(cur, name)
			scopes = append(scopes, fnScope)
			for i := uint(0); i < n.ChildCount(); i++ {
				child := n.Child(i)
				if child == nil {
					continue
				}
				switch child.Kind() {
				case "parameters":
					visitParameters(child, fnScope, visit)
				case "identifier":
					// The function's own name is a definition, not a read.
				default:
					visit(child, fnScope)
				}
			}

		case "assignment":
			left := n.ChildByFieldName("left")
			right := n.ChildByFieldName("right")
			if right != nil {
				bindTargets(left, cur)
			}
			// Annotation-only statements (x: int) bind nothing.
			if typeNode := n.ChildByFieldName("type"); typeNode != nil {
				visit(typeNode, cur)
			}
			if right != nil {
				visit(right, cur)
			}

		case "augmented_assignment":
			// x += 1 both reads and rewrites x; the read keeps it live.
			if left := n.ChildByFieldName("left"); left != nil {
				visit(left, cur)
			}
			if right := n.ChildByFieldName("right"); right != nil {
				visit(right, cur)
			}

		case "for_statement":
			skipTargets(n.ChildByFieldName("left"), cur)
			if right := n.ChildByFieldName("right"); right != nil {
				visit(right, cur)
			}
			if body := n.ChildByFieldName("body"); body != nil {
				visit(body, cur)
			}
			if alt := n.ChildByFieldName("alternative"); alt != nil {
				visit(alt, cur)
			}

		case "as_pattern":
			// with open(...) as f / except E as e: the alias is a
			// non-assignment rebind, the subject is a read.
			if subject := n.NamedChild(0); subject != nil {
				visit(subject, cur)
			}

		case "attribute":
			// obj.attr reads obj; the attribute name itself is not a
			// variable reference.
			if object := n.ChildByFieldName("object"); object != nil {
				visit(object, cur)
			}

		case "keyword_argument":
			if value := n.ChildByFieldName("value"); value != nil {
				visit(value, cur)
			}

		case "import_statement", "import_from_statement", "future_import_statement":
			// Imports are the unused-import rule's concern; their names
			// must not tally as variable reads.

		case "global_statement", "nonlocal_statement":
			// Declarations, not references; assignments to these names
			// land in another scope.
			for i := uint(0); i < n.NamedChildCount(); i++ {
				if ident := n.NamedChild(i); ident != nil && ident.Kind() == "identifier" {
					cur.declared[parser.Text(src, ident)] = true
				}
			}

		case "identifier":
			cur.read(parser.Text(src, n))

		default:
			visitChildren(n, cur)
		}
	}

	if root != nil {
		visitChildren(root, module)
	}
	return scopes
}

// visitParameters walks a parameter list: parameter names neither bind nor
// read, but annotations and default values evaluate as ordinary
// expressions.
func visitParameters(params *sitter.Node, fnScope *scope, visit func(n *sitter.Node, cur *scope)) {
	for i := uint(0); i < params.NamedChildCount(); i++ {
		param := params.NamedChild(i)
		if param == nil {
			continue
		}
		switch param.Kind() {
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
			// Bare parameter names.
		case "typed_parameter":
			if typeNode := param.ChildByFieldName("type"); typeNode != nil {
				visit(typeNode, fnScope)
			}
		case "default_parameter", "typed_default_parameter":
			if typeNode := param.ChildByFieldName("type"); typeNode != nil {
				visit(typeNode, fnScope)
			}
			if value := param.ChildByFieldName("value"); value != nil {
				visit(value, fnScope)
			}
		default:
			visit(param, fnScope)
		}
	}
}
