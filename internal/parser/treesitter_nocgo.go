//go:build !cgo

package parser

// Tree-sitter grammars need cgo; without it only the Go parser is registered
// and other languages fall back to whole-file chunks.
func treeSitterParsers() []Parser {
	return nil
}
