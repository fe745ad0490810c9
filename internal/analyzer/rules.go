// # internal/analyzer/rules.go
package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"reviewd/internal/parser"
)

// Rule is one structural check. Rules run over a successfully parsed tree
// only; they are independent of each other and of the line scanner.
type Rule struct {
	Name string
	Doc  string
	Run  func(p *Pass)
}

// Pass is the read-only view handed to each rule, plus its diagnostic sink.
// Rules must not mutate Root or Source.
type Pass struct {
	Root   *sitter.Node
	Source []byte
	Opts   Options

	diags []Diagnostic
}

// Report records a finding anchored to a 1-based line.
func (p *Pass) Report(sev Severity, line int, msg string) {
	p.diags = append(p.diags, Diagnostic{Severity: sev, Line: lineAt(line), Message: msg})
}

func (p *Pass) Reportf(sev Severity, line int, format string, args ...any) {
	p.Report(sev, line, fmt.Sprintf(format, args...))
}

// Rules returns the structural battery in its fixed execution order.
func Rules() []Rule {
	return []Rule{
		unusedVariableRule,
		unusedImportRule,
		functionLengthRule,
		bareExceptRule,
		missingDocRule,
		mutableDefaultRule,
		magicNumberRule,
		nestedLoopRule,
	}
}

var unusedVariableRule = Rule{
	Name: "unused-variable",
	Doc:  "flags names assigned in a scope and never read in it",
	Run: func(p *Pass) {
		for _, sc := range collectScopes(p.Root, p.Source) {
			for _, name := range sc.order {
				if bindingExempt(name) || sc.reads[name] {
					continue
				}
				p.Reportf(SeverityBug, sc.bindings[name], "Variable '%s' is assigned but never used", name)
			}
		}
	},
}

var unusedImportRule = Rule{
	Name: "unused-import",
	Doc:  "flags imported names never referenced, directly or as an attribute base",
	Run: func(p *Pass) {
		scopes := collectScopes(p.Root, p.Source)
		// Reads propagate upward, so the module scope sees every
		// reference in the file, including attribute bases.
		referenced := scopes[0].reads

		for _, imp := range collectImports(p.Root, p.Source) {
			if imp.wildcard || imp.module == "__future__" {
				continue
			}
			if strings.HasPrefix(imp.name, "_") {
				continue
			}
			if referenced[imp.name] {
				continue
			}
			p.Reportf(SeverityWarning, imp.line, "Import '%s' is never used", imp.name)
		}
	},
}

// importBinding is one name an import statement introduces.
type importBinding struct {
	name     string
	module   string
	line     int
	wildcard bool
}

func collectImports(root *sitter.Node, src []byte) []importBinding {
	var out []importBinding

	Walk(root, func(n *sitter.Node, _ int) bool {
		switch n.Kind() {
		case "import_statement":
			out = append(out, importStatementBindings(n, src)...)
			return false
		case "import_from_statement":
			out = append(out, fromImportBindings(n, src)...)
			return false
		case "future_import_statement":
			// __future__ imports are directives, never unused.
			return false
		}
		return true
	})
	return out
}

// importStatementBindings handles `import a.b, c as d`: a dotted import
// binds its first segment, an aliased import binds the alias.
func importStatementBindings(n *sitter.Node, src []byte) []importBinding {
	var out []importBinding
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			module := parser.Text(src, child)
			out = append(out, importBinding{
				name:   firstSegment(module),
				module: module,
				line:   parser.Line(child),
			})
		case "aliased_import":
			module, alias := aliasedImportParts(child, src)
			out = append(out, importBinding{
				name:   alias,
				module: module,
				line:   parser.Line(child),
			})
		}
	}
	return out
}

// fromImportBindings handles `from pkg import a, b as c` and its relative
// and wildcard forms.
func fromImportBindings(n *sitter.Node, src []byte) []importBinding {
	module := ""
	foundImport := false
	var out []importBinding

	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "import":
			foundImport = true
		case "relative_import":
			module = parser.Text(src, child)
		case "wildcard_import":
			return []importBinding{{module: module, line: parser.Line(n), wildcard: true}}
		case "dotted_name", "identifier":
			if !foundImport {
				module = parser.Text(src, child)
				continue
			}
			out = append(out, importBinding{
				name:   firstSegment(parser.Text(src, child)),
				module: module,
				line:   parser.Line(child),
			})
		case "aliased_import":
			_, alias := aliasedImportParts(child, src)
			out = append(out, importBinding{
				name:   alias,
				module: module,
				line:   parser.Line(child),
			})
		case "import_list":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				item := child.NamedChild(j)
				if item == nil {
					continue
				}
				switch item.Kind() {
				case "dotted_name", "identifier":
					out = append(out, importBinding{
						name:   firstSegment(parser.Text(src, item)),
						module: module,
						line:   parser.Line(item),
					})
				case "aliased_import":
					_, alias := aliasedImportParts(item, src)
					out = append(out, importBinding{
						name:   alias,
						module: module,
						line:   parser.Line(item),
					})
				}
			}
		}
	}
	return out
}

func aliasedImportParts(n *sitter.Node, src []byte) (module, alias string) {
	for i := uint(0); i < n.ChildCount(); i++ {
		sub := n.Child(i)
		if sub == nil {
			continue
		}
		if sub.Kind() == "dotted_name" || sub.Kind() == "identifier" {
			if module == "" {
				module = parser.Text(src, sub)
			} else {
				alias = parser.Text(src, sub)
			}
		}
	}
	return module, alias
}

func firstSegment(dotted string) string {
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}

var functionLengthRule = Rule{
	Name: "function-too-long",
	Doc:  "flags functions whose line span crosses the soft or hard threshold",
	Run: func(p *Pass) {
		Walk(p.Root, func(n *sitter.Node, _ int) bool {
			if n.Kind() != "function_definition" {
				return true
			}
			span := definitionSpan(p.Source, n)
			name := parser.Text(p.Source, n.ChildByFieldName("name"))
			switch {
			case span > p.Opts.FuncLengthWarn:
				p.Reportf(SeverityWarning, parser.Line(n),
					"Function '%s' is %d lines long. Break it into smaller functions", name, span)
			case span > p.Opts.FuncLengthInfo:
				p.Reportf(SeverityInfo, parser.Line(n),
					"Function '%s' is %d lines long. Consider splitting it", name, span)
			}
			return true
		})
	},
}

// definitionSpan measures a definition's inclusive line count from its
// source text. The grammar folds the statement terminator after a block's
// final statement into the block itself, so the raw node extent can run
// past the last code line; trimming trailing whitespace gives the span a
// reader would count.
func definitionSpan(src []byte, n *sitter.Node) int {
	start, end := int(n.StartByte()), int(n.EndByte())
	if end > len(src) {
		end = len(src)
	}
	if start >= end {
		return 1
	}
	text := strings.TrimRight(string(src[start:end]), " \t\r\n")
	return strings.Count(text, "\n") + 1
}

var bareExceptRule = Rule{
	Name: "bare-except",
	Doc:  "flags except clauses that catch everything",
	Run: func(p *Pass) {
		Walk(p.Root, func(n *sitter.Node, _ int) bool {
			if n.Kind() != "except_clause" {
				return true
			}
			bare := true
			for i := uint(0); i < n.NamedChildCount(); i++ {
				child := n.NamedChild(i)
				if child == nil {
					continue
				}
				if kind := child.Kind(); kind != "block" && kind != "comment" {
					bare = false
					break
				}
			}
			if bare {
				p.Report(SeverityWarning, parser.Line(n),
					"Bare 'except:' catches all exceptions. Catch specific exception types instead")
			}
			return true
		})
	},
}

var missingDocRule = Rule{
	Name: "missing-doc",
	Doc:  "flags public functions and classes without a docstring",
	Run: func(p *Pass) {
		Walk(p.Root, func(n *sitter.Node, _ int) bool {
			kind := n.Kind()
			if kind != "function_definition" && kind != "class_definition" {
				return true
			}
			name := parser.Text(p.Source, n.ChildByFieldName("name"))
			if strings.HasPrefix(name, "_") {
				return true
			}
			if hasDocstring(n) {
				return true
			}
			what := "Function"
			if kind == "class_definition" {
				what = "Class"
			}
			p.Reportf(SeverityInfo, parser.Line(n), "%s '%s' is missing a docstring", what, name)
			return true
		})
	},
}

// hasDocstring reports whether the definition's body opens with a string
// expression. Leading comments are skipped; they are not docstrings.
func hasDocstring(def *sitter.Node) bool {
	body := def.ChildByFieldName("body")
	if body == nil {
		return false
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		stmt := body.NamedChild(i)
		if stmt == nil || stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" {
			return false
		}
		expr := stmt.NamedChild(0)
		return expr != nil && expr.Kind() == "string"
	}
	return false
}

var mutableDefaultRule = Rule{
	Name: "mutable-default",
	Doc:  "flags list/dict/set literals used as parameter defaults",
	Run: func(p *Pass) {
		Walk(p.Root, func(n *sitter.Node, _ int) bool {
			if n.Kind() != "function_definition" {
				return true
			}
			params := n.ChildByFieldName("parameters")
			if params == nil {
				return true
			}
			name := parser.Text(p.Source, n.ChildByFieldName("name"))
			for i := uint(0); i < params.NamedChildCount(); i++ {
				param := params.NamedChild(i)
				if param == nil {
					continue
				}
				if param.Kind() != "default_parameter" && param.Kind() != "typed_default_parameter" {
					continue
				}
				value := param.ChildByFieldName("value")
				if value == nil {
					continue
				}
				switch value.Kind() {
				case "list", "dictionary", "set":
					// One report per function, at the first offender.
					p.Reportf(SeverityBug, parser.Line(value),
						"Function '%s' uses a mutable default argument", name)
					return true
				}
			}
			return true
		})
	},
}

// allowedNumbers are literal values too conventional to count as magic.
var allowedNumbers = map[float64]bool{0: true, 1: true, -1: true, 2: true, 100: true}

var magicNumberRule = Rule{
	Name: "magic-number",
	Doc:  "flags numeric literals outside the conventional allowlist",
	Run: func(p *Pass) {
		Walk(p.Root, func(n *sitter.Node, _ int) bool {
			kind := n.Kind()
			if kind != "integer" && kind != "float" {
				return true
			}
			text := parser.Text(p.Source, n)
			value, ok := parseNumericLiteral(text)
			if ok {
				if parent := n.Parent(); parent != nil && parent.Kind() == "unary_operator" &&
					strings.HasPrefix(parser.Text(p.Source, parent), "-") {
					value = -value
				}
				if allowedNumbers[value] {
					return true
				}
			}
			p.Reportf(SeverityInfo, parser.Line(n),
				"Magic number %s. Consider replacing it with a named constant", text)
			return true
		})
	},
}

// parseNumericLiteral understands Python's int forms (base prefixes, digit
// underscores) and plain floats. Anything else is treated as magic by the
// caller.
func parseNumericLiteral(text string) (float64, bool) {
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return float64(v), true
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, true
	}
	return 0, false
}

var nestedLoopRule = Rule{
	Name: "nested-loops",
	Doc:  "flags scopes whose for/while nesting reaches the configured depth",
	Run: func(p *Pass) {
		for _, body := range loopScopeBodies(p.Root) {
			first, deepest := deepestLoopChain(body, p.Opts.MaxLoopDepth)
			if first == nil {
				continue
			}
			p.Reportf(SeverityWarning, parser.Line(first),
				"Loops nested %d levels deep. Extract the inner loops into helper functions", deepest)
		}
	},
}

// loopScopeBodies returns the module root plus every function body; loop
// depth is measured per scope so a loop inside a nested def starts over.
func loopScopeBodies(root *sitter.Node) []*sitter.Node {
	bodies := []*sitter.Node{root}
	Walk(root, func(n *sitter.Node, _ int) bool {
		if n.Kind() == "function_definition" {
			if body := n.ChildByFieldName("body"); body != nil {
				bodies = append(bodies, body)
			}
		}
		return true
	})
	return bodies
}

// deepestLoopChain walks one scope body without crossing into nested
// functions. It returns the first loop (document order) whose chain depth
// reaches threshold, and the scope's maximum depth.
func deepestLoopChain(body *sitter.Node, threshold int) (first *sitter.Node, deepest int) {
	var descend func(n *sitter.Node, depth int)
	descend = func(n *sitter.Node, depth int) {
		for i := uint(0); i < n.ChildCount(); i++ {
			child := n.Child(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "function_definition":
				continue
			case "for_statement", "while_statement":
				d := depth + 1
				if d > deepest {
					deepest = d
				}
				if d >= threshold && first == nil {
					first = child
				}
				descend(child, d)
			default:
				descend(child, depth)
			}
		}
	}
	if body != nil {
		descend(body, 0)
	}
	if deepest < threshold {
		return nil, deepest
	}
	return first, deepest
}
