package parser

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/dshills/kaze/pkg/types"
)

// GoParser handles AST-based parsing of Go source files. Go chunks are flat:
// methods are named Recv.Method but carry no parent link to their type.
type GoParser struct{}

// NewGoParser creates a new GoParser instance
func NewGoParser() *GoParser {
	return &GoParser{}
}

func (p *GoParser) Language() string     { return "go" }
func (p *GoParser) Extensions() []string { return []string{".go"} }

// Parse extracts functions, methods, type declarations and const/var groups
func (p *GoParser) Parse(ctx context.Context, content []byte) ([]types.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", content, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: go: %w", types.ErrParseFailure, err)
	}

	e := &goExtractor{fset: fset, src: content}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			e.extractGenDecl(d)
		}
	}
	return e.candidates, nil
}

type goExtractor struct {
	fset       *token.FileSet
	src        []byte
	candidates []types.Candidate
}

func (e *goExtractor) add(chunkType types.ChunkType, name string, node ast.Node) {
	start := e.fset.Position(node.Pos())
	end := e.fset.Position(node.End())
	e.candidates = append(e.candidates, types.Candidate{
		Type:        chunkType,
		Name:        name,
		StartLine:   start.Line,
		EndLine:     end.Line,
		StartByte:   start.Offset,
		EndByte:     end.Offset,
		ParentIndex: -1,
		Text:        string(e.src[start.Offset:end.Offset]),
	})
}

// extractFunction extracts function and method declarations
func (e *goExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		recv := receiverType(funcDecl.Recv.List[0].Type)
		e.add(types.ChunkMethod, recv+"."+funcDecl.Name.Name, funcDecl)
		return
	}
	e.add(types.ChunkFunction, funcDecl.Name.Name, funcDecl)
}

// extractGenDecl extracts type declarations and const/var groups; imports are skipped
func (e *goExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	switch genDecl.Tok {
	case token.TYPE:
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			chunkType := types.ChunkTypeDecl
			if _, isIface := typeSpec.Type.(*ast.InterfaceType); isIface {
				chunkType = types.ChunkInterface
			}
			// A lone unparenthesized type keeps its "type" keyword
			var node ast.Node = typeSpec
			if !genDecl.Lparen.IsValid() {
				node = genDecl
			}
			e.add(chunkType, typeSpec.Name.Name, node)
		}
	case token.CONST, token.VAR:
		name := firstValueName(genDecl)
		if name == "" {
			return
		}
		chunkType := types.ChunkConstGroup
		if genDecl.Tok == token.VAR {
			chunkType = types.ChunkVarGroup
		}
		e.add(chunkType, name, genDecl)
	}
}

func firstValueName(genDecl *ast.GenDecl) string {
	for _, spec := range genDecl.Specs {
		if vs, ok := spec.(*ast.ValueSpec); ok && len(vs.Names) > 0 {
			return vs.Names[0].Name
		}
	}
	return ""
}

// receiverType extracts the receiver type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		// Generic receiver: T[K]
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	}
	return "unnamed"
}
