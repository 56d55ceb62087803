// Package parser turns source files into chunk candidates.
//
// Go files are parsed with the standard go/parser. Python, Java,
// JavaScript/JSX and TypeScript/TSX use tree-sitter grammars and are only
// available in cgo builds.
//
// # Basic Usage
//
//	reg := parser.DefaultRegistry()
//	p, ok := reg.ForPath("pkg/user.py")
//	if !ok {
//	    // no parser: the caller embeds the whole file
//	}
//	candidates, err := p.Parse(ctx, content)
//
// # Candidates
//
// Parsers emit candidates depth-first, parents before children. A nested
// candidate is named after its enclosing one (Foo.bar for method bar of
// class Foo) and points at it through ParentIndex. Go chunks are flat:
// methods are named Recv.Method without a parent link.
//
// Extracted constructs:
//   - Go: functions, methods, type declarations, const and var groups
//   - Python: classes, functions, methods (functions directly in a class)
//   - Java: classes, interfaces, enums, methods, constructors
//   - JavaScript/TypeScript: classes, functions, methods, interfaces,
//     type aliases, enums, arrow functions assigned to a name
//
// # Error Handling
//
// A Go file with syntax errors yields ErrParseFailure. Tree-sitter grammars
// recover from syntax errors and return whatever parsed.
package parser
