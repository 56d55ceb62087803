//go:build cgo

package parser

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/kaze/pkg/types"
)

const unnamed = "unnamed"

// classifyFunc decides whether node starts a chunk. enclosing is the type of
// the nearest enclosing chunk, empty at top level.
type classifyFunc func(node *sitter.Node, enclosing types.ChunkType, src []byte) (types.ChunkType, string, bool)

// TreeSitterParser extracts candidates from a tree-sitter syntax tree
type TreeSitterParser struct {
	language   string
	extensions []string
	grammar    *sitter.Language
	classify   classifyFunc
}

func (p *TreeSitterParser) Language() string     { return p.language }
func (p *TreeSitterParser) Extensions() []string { return p.extensions }

// Parse builds a fresh tree-sitter parser per call, so one TreeSitterParser
// may be shared by concurrent goroutines.
func (p *TreeSitterParser) Parse(ctx context.Context, content []byte) ([]types.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := sitter.NewParser()
	defer ts.Close()
	ts.SetLanguage(p.grammar)

	tree, err := ts.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrParseFailure, p.language, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: %s: parsing resulted in a nil tree", types.ErrParseFailure, p.language)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		log.Debug().Str("language", p.language).Msg("syntax tree contains errors, extracting what parsed")
	}

	w := &treeWalker{src: content, classify: p.classify}
	w.walk(root, -1)
	return w.candidates, nil
}

type treeWalker struct {
	src        []byte
	classify   classifyFunc
	candidates []types.Candidate
}

func (w *treeWalker) walk(node *sitter.Node, parent int) {
	var enclosing types.ChunkType
	if parent >= 0 {
		enclosing = w.candidates[parent].Type
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}

		next := parent
		if chunkType, name, ok := w.classify(child, enclosing, w.src); ok {
			if parent >= 0 {
				name = w.candidates[parent].Name + "." + name
			}
			w.candidates = append(w.candidates, types.Candidate{
				Type:        chunkType,
				Name:        name,
				StartLine:   int(child.StartPoint().Row) + 1,
				EndLine:     int(child.EndPoint().Row) + 1,
				StartByte:   int(child.StartByte()),
				EndByte:     int(child.EndByte()),
				ParentIndex: parent,
				Text:        child.Content(w.src),
			})
			next = len(w.candidates) - 1
		}
		w.walk(child, next)
	}
}

// fieldName returns the text of the node's "name" field
func fieldName(node *sitter.Node, src []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return unnamed
}
