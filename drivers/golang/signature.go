package golang

import (
	"fmt"
	"go/ast"
	"go/types"
	"strings"

	"github.com/emenda-labs/agentver/core/symbols"
)

// renderTypeExpr converts a type expression to its canonical string form.
func renderTypeExpr(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name

	case *ast.SelectorExpr:
		return renderTypeExpr(e.X) + "." + e.Sel.Name

	case *ast.StarExpr:
		return "*" + renderTypeExpr(e.X)

	case *ast.ArrayType:
		if e.Len != nil {
			return fmt.Sprintf("[%s]%s", renderTypeExpr(e.Len), renderTypeExpr(e.Elt))
		}
		return "[]" + renderTypeExpr(e.Elt)

	case *ast.MapType:
		return "map[" + renderTypeExpr(e.Key) + "]" + renderTypeExpr(e.Value)

	case *ast.InterfaceType:
		if e.Methods == nil || len(e.Methods.List) == 0 {
			return "interface{}"
		}
		return "interface{...}"

	case *ast.FuncType:
		params, returns := extractParams(e)
		paramTypes := make([]string, len(params))
		for i, p := range params {
			paramTypes[i] = p.Type
		}
		s := "func(" + strings.Join(paramTypes, ", ") + ")"
		if returns != "" {
			s += " " + returns
		}
		return s

	case *ast.Ellipsis:
		return "..." + renderTypeExpr(e.Elt)

	case *ast.ChanType:
		switch e.Dir {
		case ast.RECV:
			return "<-chan " + renderTypeExpr(e.Value)
		case ast.SEND:
			return "chan<- " + renderTypeExpr(e.Value)
		default:
			return "chan " + renderTypeExpr(e.Value)
		}

	case *ast.StructType:
		return "struct{...}"

	case *ast.IndexExpr:
		return renderTypeExpr(e.X) + "[" + renderTypeExpr(e.Index) + "]"

	case *ast.IndexListExpr:
		indices := make([]string, len(e.Indices))
		for i, idx := range e.Indices {
			indices[i] = renderTypeExpr(idx)
		}
		return renderTypeExpr(e.X) + "[" + strings.Join(indices, ", ") + "]"

	case *ast.ParenExpr:
		return "(" + renderTypeExpr(e.X) + ")"

	case *ast.BasicLit:
		return e.Value

	default:
		return types.ExprString(expr)
	}
}

// extractParams returns the parameters of a function type in declaration
// order together with the rendered result list. A variadic final parameter
// is optional because callers may omit it.
func extractParams(funcType *ast.FuncType) ([]symbols.Param, string) {
	if funcType == nil {
		return nil, ""
	}

	var params []symbols.Param
	if funcType.Params != nil {
		for _, field := range funcType.Params.List {
			typeStr := renderTypeExpr(field.Type)
			_, variadic := field.Type.(*ast.Ellipsis)

			if len(field.Names) == 0 {
				params = append(params, symbols.Param{
					Name:     fmt.Sprintf("_%d", len(params)),
					Type:     typeStr,
					Optional: variadic,
				})
				continue
			}
			for _, name := range field.Names {
				params = append(params, symbols.Param{
					Name:     name.Name,
					Type:     typeStr,
					Optional: variadic,
				})
			}
		}
	}

	var results []string
	if funcType.Results != nil {
		for _, field := range funcType.Results.List {
			typeStr := renderTypeExpr(field.Type)
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for range n {
				results = append(results, typeStr)
			}
		}
	}

	return params, renderResults(results)
}

// renderResults formats a result list as "T" or "(A, B)".
func renderResults(results []string) string {
	switch len(results) {
	case 0:
		return ""
	case 1:
		return results[0]
	default:
		return "(" + strings.Join(results, ", ") + ")"
	}
}

// interfaceMethods lists the exported method names declared directly on an
// interface type. Embedded interfaces are not expanded.
func interfaceMethods(iface *ast.InterfaceType) []string {
	if iface.Methods == nil {
		return nil
	}
	var names []string
	for _, method := range iface.Methods.List {
		for _, name := range method.Names {
			if name.IsExported() {
				names = append(names, name.Name)
			}
		}
	}
	return names
}

// baseTypeName extracts the base type name from an AST expression,
// stripping pointers, type parameters (generics), and package selectors.
// Examples: *Client -> "Client", Foo[T] -> "Foo", *Bar[T, U] -> "Bar"
func baseTypeName(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}

	if idx, ok := expr.(*ast.IndexExpr); ok {
		expr = idx.X
	}
	if idx, ok := expr.(*ast.IndexListExpr); ok {
		expr = idx.X
	}

	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name
	}
	if sel, ok := expr.(*ast.SelectorExpr); ok {
		return sel.Sel.Name
	}

	return ""
}

// receiverTypeName extracts the base type name from a method receiver.
func receiverTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	return baseTypeName(recv.List[0].Type)
}
