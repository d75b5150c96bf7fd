package indexer

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/nateschmiedehaus/librarian-sub018/internal/symbols"
)

type goFunction struct {
	Name      string
	Kind      symbols.Kind
	Doc       string
	Exported  bool
	StartLine int
	EndLine   int
}

type goType struct {
	Name      string
	Kind      symbols.Kind
	Doc       string
	Exported  bool
	StartLine int
	EndLine   int
}

type goFile struct {
	RelPath   string
	Package   string
	Doc       string
	Lines     []string
	Symbols   []symbols.Entry
	Functions []goFunction
	Types     []goType
}

func parseGoFile(relPath string, content []byte) (goFile, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, relPath, content, parser.ParseComments)
	if err != nil {
		return goFile{}, err
	}

	out := goFile{
		RelPath: relPath,
		Package: f.Name.Name,
		Doc:     f.Doc.Text(),
		Lines:   strings.Split(string(content), "\n"),
	}

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			fn := extractFunc(fset, d, len(out.Lines))
			out.Functions = append(out.Functions, fn)
			out.Symbols = append(out.Symbols, symbols.Entry{
				Name:      fn.Name,
				Kind:      fn.Kind,
				File:      relPath,
				StartLine: fn.StartLine,
				EndLine:   fn.EndLine,
			})
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				typ := extractType(fset, d, ts, len(out.Lines))
				out.Types = append(out.Types, typ)
				out.Symbols = append(out.Symbols, symbols.Entry{
					Name:      typ.Name,
					Kind:      typ.Kind,
					File:      relPath,
					StartLine: typ.StartLine,
					EndLine:   typ.EndLine,
				})
			}
		}
	}

	return out, nil
}

func extractFunc(fset *token.FileSet, fn *ast.FuncDecl, lineCount int) goFunction {
	start, end := declLines(fset, fn.Pos(), fn.End(), lineCount)

	kind := symbols.KindFunction
	name := fn.Name.Name
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		kind = symbols.KindMethod
		switch t := fn.Recv.List[0].Type.(type) {
		case *ast.StarExpr:
			if ident, ok := t.X.(*ast.Ident); ok {
				name = ident.Name + "." + fn.Name.Name
			}
		case *ast.Ident:
			name = t.Name + "." + fn.Name.Name
		}
	}

	return goFunction{
		Name:      name,
		Kind:      kind,
		Doc:       fn.Doc.Text(),
		Exported:  ast.IsExported(fn.Name.Name),
		StartLine: start,
		EndLine:   end,
	}
}

func extractType(fset *token.FileSet, decl *ast.GenDecl, spec *ast.TypeSpec, lineCount int) goType {
	start, end := declLines(fset, spec.Pos(), spec.End(), lineCount)

	kind := symbols.KindType
	switch spec.Type.(type) {
	case *ast.StructType:
		kind = symbols.KindClass
	case *ast.InterfaceType:
		kind = symbols.KindInterface
	}

	doc := spec.Doc.Text()
	if doc == "" && len(decl.Specs) == 1 {
		doc = decl.Doc.Text()
	}

	return goType{
		Name:      spec.Name.Name,
		Kind:      kind,
		Doc:       doc,
		Exported:  ast.IsExported(spec.Name.Name),
		StartLine: start,
		EndLine:   end,
	}
}

func declLines(fset *token.FileSet, pos, end token.Pos, lineCount int) (int, int) {
	startLine := fset.Position(pos).Line
	endLine := fset.Position(end).Line
	if startLine < 1 {
		startLine = 1
	}
	if endLine > lineCount {
		endLine = lineCount
	}
	if endLine < startLine {
		endLine = startLine
	}
	return startLine, endLine
}
