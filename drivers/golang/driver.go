// Package golang extracts the exported API of Go source files.
package golang

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"

	"github.com/emenda-labs/agentver/core/driver"
	"github.com/emenda-labs/agentver/core/snapshot"
	"github.com/emenda-labs/agentver/core/symbols"
)

// Language is the name reported in symbol tables built by this package.
const Language = "go"

var _ driver.Extractor = (*Extractor)(nil)

// Extractor implements driver.Extractor for Go source files.
type Extractor struct{}

// NewExtractor creates a Go Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Language() string { return Language }

func (e *Extractor) Extensions() []string { return []string{".go"} }

// Extract parses one Go file and collects its exported functions, types,
// methods and constants. Test files contribute nothing.
func (e *Extractor) Extract(ctx context.Context, file snapshot.File) (symbols.Table, error) {
	table := symbols.Table{Language: Language, PositionalOnly: true}
	if strings.HasSuffix(file.Path, "_test.go") {
		return table, nil
	}
	if err := ctx.Err(); err != nil {
		return table, err
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, file.Path, file.Content, parser.SkipObjectResolution)
	if err != nil {
		return table, toParseError(file.Path, err)
	}

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			collectFunc(d, &table)
		case *ast.GenDecl:
			switch d.Tok {
			case token.TYPE:
				collectTypes(d, &table)
			case token.CONST:
				collectConsts(d, &table)
			}
		}
	}

	table.Normalize()
	return table, nil
}

func toParseError(path string, err error) error {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &symbols.ParseError{
			File:    path,
			Line:    list[0].Pos.Line,
			Message: list[0].Msg,
		}
	}
	return &symbols.ParseError{File: path, Message: err.Error()}
}

// collectFunc records an exported function, or an exported method on an
// exported receiver as a method of that receiver's class.
func collectFunc(funcDecl *ast.FuncDecl, table *symbols.Table) {
	if funcDecl.Name == nil || !funcDecl.Name.IsExported() {
		return
	}

	if funcDecl.Recv != nil {
		recvName := receiverTypeName(funcDecl.Recv)
		if recvName == "" || !ast.IsExported(recvName) {
			return
		}
		table.Classes = append(table.Classes, symbols.Class{
			Name:    recvName,
			Methods: []string{funcDecl.Name.Name},
		})
		return
	}

	params, returns := extractParams(funcDecl.Type)
	table.Functions = append(table.Functions, symbols.Function{
		Name:    funcDecl.Name.Name,
		Params:  params,
		Returns: returns,
	})
}

// collectTypes records every exported type as a class. Interface methods
// are listed directly; methods of other types arrive through collectFunc.
func collectTypes(genDecl *ast.GenDecl, table *symbols.Table) {
	for _, spec := range genDecl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok || typeSpec.Name == nil || !typeSpec.Name.IsExported() {
			continue
		}

		class := symbols.Class{Name: typeSpec.Name.Name, Methods: []string{}}
		if iface, ok := typeSpec.Type.(*ast.InterfaceType); ok {
			class.Methods = append(class.Methods, interfaceMethods(iface)...)
		}
		table.Classes = append(table.Classes, class)
	}
}

// collectConsts records exported constants. A spec without values repeats
// the previous expression list, so its value text carries the iota index
// to keep implicit enumerations distinguishable.
func collectConsts(genDecl *ast.GenDecl, table *symbols.Table) {
	var (
		lastValues []ast.Expr
		lastType   ast.Expr
	)
	for idx, spec := range genDecl.Specs {
		valSpec, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		values, typ := valSpec.Values, valSpec.Type
		if len(values) == 0 {
			values, typ = lastValues, lastType
		} else {
			lastValues, lastType = values, typ
		}

		for i, name := range valSpec.Names {
			if !name.IsExported() {
				continue
			}
			var value string
			if i < len(values) {
				value = types.ExprString(values[i])
				if usesIota(values[i]) {
					value = fmt.Sprintf("%s [iota=%d]", value, idx)
				}
			}
			if typ != nil {
				value = renderTypeExpr(typ) + "(" + value + ")"
			}
			table.Constants = append(table.Constants, symbols.Constant{
				Name:  name.Name,
				Value: value,
			})
		}
	}
}

func usesIota(expr ast.Expr) bool {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == "iota" {
			found = true
		}
		return !found
	})
	return found
}
