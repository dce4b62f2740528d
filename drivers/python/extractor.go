// Package python extracts the public API of Python source files using
// tree-sitter.
package python

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/emenda-labs/agentver/core/driver"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

// Language is the name reported in symbol tables built by this package.
const Language = "python"

var _ driver.Extractor = (*Extractor)(nil)

// literalTypes are the right-hand sides that make a module-level
// assignment count as a constant.
var literalTypes = map[string]bool{
	"integer":             true,
	"float":               true,
	"string":              true,
	"concatenated_string": true,
	"true":                true,
	"false":               true,
	"none":                true,
	"tuple":               true,
	"list":                true,
	"dictionary":          true,
	"set":                 true,
}

// Extractor implements driver.Extractor for Python source files.
type Extractor struct{}

// NewExtractor creates a Python Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Language() string { return Language }

func (e *Extractor) Extensions() []string { return []string{".py", ".pyi"} }

// Extract parses one Python file. Any syntax error in the tree fails the
// whole file with the line of the first offending node.
func (e *Extractor) Extract(ctx context.Context, file snapshot.File) (symbols.Table, error) {
	table := symbols.Table{Language: Language}

	if !utf8.Valid(file.Content) {
		return table, &symbols.ParseError{File: file.Path, Message: "content is not valid UTF-8"}
	}

	// New parser per call; sitter.Parser is not safe for concurrent use.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, file.Content)
	if err != nil {
		if ctx.Err() != nil {
			return table, ctx.Err()
		}
		return table, &symbols.ParseError{File: file.Path, Message: fmt.Sprintf("tree-sitter parse failed: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return table, &symbols.ParseError{File: file.Path, Message: "tree-sitter returned nil root node"}
	}
	if root.HasError() {
		line, near := firstSyntaxError(root, file.Content)
		return table, &symbols.ParseError{
			File:    file.Path,
			Line:    line,
			Message: "invalid syntax near " + near,
		}
	}

	code := file.Content
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := unwrapDecorated(root.NamedChild(i))
		switch node.Type() {
		case "function_definition":
			if fn, ok := extractFunction(node, code); ok && isPublic(fn.Name) {
				table.Functions = append(table.Functions, fn)
			}
		case "class_definition":
			if class, ok := extractClass(node, code); ok && isPublic(class.Name) {
				table.Classes = append(table.Classes, class)
			}
		case "expression_statement":
			table.Constants = append(table.Constants, extractConstants(node, code)...)
		}
	}

	table.Normalize()
	return table, nil
}

// firstSyntaxError returns the 1-based line and a short excerpt of the
// first ERROR or MISSING node in document order.
func firstSyntaxError(node *sitter.Node, code []byte) (int, string) {
	if node.IsError() || node.IsMissing() {
		near := node.Type()
		if node.IsError() {
			end := node.EndByte()
			if end > uint32(len(code)) {
				end = uint32(len(code))
			}
			near = string(code[node.StartByte():end])
			if len(near) > 40 {
				near = near[:40] + "..."
			}
		}
		return int(node.StartPoint().Row) + 1, fmt.Sprintf("%q", strings.TrimSpace(near))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstSyntaxError(child, code)
		}
	}
	return int(node.StartPoint().Row) + 1, "<unknown>"
}

func unwrapDecorated(node *sitter.Node) *sitter.Node {
	if node.Type() == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return node
}

func content(node *sitter.Node, code []byte) string {
	return string(code[node.StartByte():node.EndByte()])
}

// isPublic reports whether a name is part of the public surface. A leading
// underscore marks a name private.
func isPublic(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

// isPublicMethod also admits dunder methods, which callers reach through
// operators and builtins.
func isPublicMethod(name string) bool {
	if len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return isPublic(name)
}

func extractFunction(node *sitter.Node, code []byte) (symbols.Function, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return symbols.Function{}, false
	}
	fn := symbols.Function{Name: content(nameNode, code)}
	if params := node.ChildByFieldName("parameters"); params != nil {
		fn.Params = extractParameters(params, code)
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		fn.Returns = content(ret, code)
	}
	return fn, true
}

// extractParameters walks a parameters node. Bare "*" and "/" separators
// carry no name and are skipped. Splat parameters keep their star prefix
// and are optional.
func extractParameters(node *sitter.Node, code []byte) []symbols.Param {
	var params []symbols.Param

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "identifier":
			params = append(params, symbols.Param{Name: content(child, code)})

		case "typed_parameter":
			param := symbols.Param{}
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				param.Type = content(typeNode, code)
			}
			if first := child.NamedChild(0); first != nil {
				switch first.Type() {
				case "identifier":
					param.Name = content(first, code)
				case "list_splat_pattern", "dictionary_splat_pattern":
					param.Name = content(first, code)
					param.Optional = true
				}
			}
			params = append(params, param)

		case "default_parameter":
			param := symbols.Param{Optional: true}
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				param.Name = content(nameNode, code)
			}
			params = append(params, param)

		case "typed_default_parameter":
			param := symbols.Param{Optional: true}
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				param.Name = content(nameNode, code)
			}
			if typeNode := child.ChildByFieldName("type"); typeNode != nil {
				param.Type = content(typeNode, code)
			}
			params = append(params, param)

		case "list_splat_pattern", "dictionary_splat_pattern":
			params = append(params, symbols.Param{Name: content(child, code), Optional: true})
		}
	}

	return params
}

func extractClass(node *sitter.Node, code []byte) (symbols.Class, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return symbols.Class{}, false
	}
	class := symbols.Class{Name: content(nameNode, code), Methods: []string{}}

	body := node.ChildByFieldName("body")
	if body == nil {
		return class, true
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := unwrapDecorated(body.NamedChild(i))
		if member.Type() != "function_definition" {
			continue
		}
		if nameNode := member.ChildByFieldName("name"); nameNode != nil {
			if name := content(nameNode, code); isPublicMethod(name) {
				class.Methods = append(class.Methods, name)
			}
		}
	}
	return class, true
}

// extractConstants returns the public names bound to a literal by a
// module-level assignment, including annotated ones ("X: int = 3").
func extractConstants(stmt *sitter.Node, code []byte) []symbols.Constant {
	var out []symbols.Constant
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		assign := stmt.NamedChild(i)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		right := assign.ChildByFieldName("right")
		if left == nil || right == nil || left.Type() != "identifier" {
			continue
		}
		if !isLiteral(right) {
			continue
		}
		name := content(left, code)
		if !isPublic(name) {
			continue
		}
		out = append(out, symbols.Constant{Name: name, Value: content(right, code)})
	}
	return out
}

// isLiteral accepts literal nodes and negated numbers. Containers count
// when their source is a literal display, whatever they hold.
func isLiteral(node *sitter.Node) bool {
	if node.Type() == "unary_operator" {
		arg := node.ChildByFieldName("argument")
		return arg != nil && (arg.Type() == "integer" || arg.Type() == "float")
	}
	return literalTypes[node.Type()]
}
