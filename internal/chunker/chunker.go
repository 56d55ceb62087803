package chunker

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dshills/kaze/internal/parser"
	"github.com/dshills/kaze/pkg/types"
)

// Mode selects how files are decomposed into chunks
type Mode string

const (
	// ModeFiles embeds every file as one chunk
	ModeFiles Mode = "files"
	// ModeChunks splits files with a registered parser into code chunks
	ModeChunks Mode = "chunks"
)

// ParseMode converts user input into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFiles:
		return ModeFiles, nil
	case ModeChunks:
		return ModeChunks, nil
	default:
		return "", fmt.Errorf("%w: unknown chunk mode %q", types.ErrInvalidRequest, s)
	}
}

// Extractor turns file contents into chunks using a parser registry
type Extractor struct {
	registry *parser.Registry
}

// New creates an Extractor. A nil registry uses parser.DefaultRegistry.
func New(registry *parser.Registry) *Extractor {
	if registry == nil {
		registry = parser.DefaultRegistry()
	}
	return &Extractor{registry: registry}
}

// Registry returns the parser registry in use
func (e *Extractor) Registry() *parser.Registry {
	return e.registry
}

// Candidates yields the chunk candidates of one file, parents before
// children. Without a parser, or when the parser fails or finds nothing, it
// yields exactly one whole-file candidate. Parser failures never escape.
func (e *Extractor) Candidates(ctx context.Context, relPath string, content []byte, mode Mode) iter.Seq[types.Candidate] {
	return func(yield func(types.Candidate) bool) {
		if mode != ModeChunks {
			yield(WholeFile(relPath, content))
			return
		}

		candidates, err := e.parse(ctx, relPath, content)
		if err != nil {
			log.Warn().Err(err).Str("file", relPath).Msg("parse failed, falling back to whole file")
		}
		if len(candidates) == 0 {
			yield(WholeFile(relPath, content))
			return
		}

		for _, c := range candidates {
			if !yield(c) {
				return
			}
		}
	}
}

// parse runs the file's parser, turning panics into ErrParseFailure
func (e *Extractor) parse(ctx context.Context, relPath string, content []byte) (candidates []types.Candidate, err error) {
	p, ok := e.registry.ForPath(relPath)
	if !ok {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("%w: %s parser panicked: %v", types.ErrParseFailure, p.Language(), r)
		}
	}()

	candidates, err = p.Parse(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := checkCandidates(candidates, len(content)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrParseFailure, p.Language(), err)
	}
	return candidates, nil
}

// checkCandidates rejects parser output that would break the forest invariant
func checkCandidates(candidates []types.Candidate, size int) error {
	for i, c := range candidates {
		if c.ParentIndex >= i || c.ParentIndex < -1 {
			return fmt.Errorf("candidate %d has parent index %d", i, c.ParentIndex)
		}
		if c.StartByte < 0 || c.EndByte < c.StartByte || c.EndByte > size {
			return fmt.Errorf("candidate %d has byte range %d-%d", i, c.StartByte, c.EndByte)
		}
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			return fmt.Errorf("candidate %d has line range %d-%d", i, c.StartLine, c.EndLine)
		}
	}
	return nil
}

// WholeFile returns the single candidate spanning all of content
func WholeFile(relPath string, content []byte) types.Candidate {
	return types.Candidate{
		Type:        types.ChunkFile,
		Name:        path.Base(filepath.ToSlash(relPath)),
		StartLine:   1,
		EndLine:     lineCount(content),
		StartByte:   0,
		EndByte:     len(content),
		ParentIndex: -1,
		Text:        string(content),
	}
}

// lineCount counts lines, not counting an empty line after a trailing newline
func lineCount(content []byte) int {
	n := bytes.Count(content, []byte{'\n'}) + 1
	if len(content) > 0 && content[len(content)-1] == '\n' {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ExtractFile resolves a file's candidates into chunks: keys are assigned,
// colliding keys are disambiguated with the start byte, and parent positions
// become parent keys. Vectors are left empty.
func (e *Extractor) ExtractFile(ctx context.Context, relPath string, content []byte, mode Mode) ([]*types.Chunk, error) {
	relPath = filepath.ToSlash(relPath)

	var chunks []*types.Chunk
	var indexKeys []string
	used := make(map[string]bool)

	for cand := range e.Candidates(ctx, relPath, content, mode) {
		key := types.BuildKey(relPath, cand.Type, cand.Name, cand.StartRow())
		if used[key] {
			key = fmt.Sprintf("%s@%d", key, cand.StartByte)
			if used[key] {
				return nil, fmt.Errorf("%w: %s", types.ErrDuplicateKey, key)
			}
		}
		used[key] = true

		var parentKey *string
		if cand.ParentIndex >= 0 {
			pk := indexKeys[cand.ParentIndex]
			parentKey = &pk
		}
		indexKeys = append(indexKeys, key)

		chunk := &types.Chunk{
			Key:       key,
			FilePath:  relPath,
			Type:      cand.Type,
			Name:      cand.Name,
			StartLine: cand.StartLine,
			EndLine:   cand.EndLine,
			StartByte: cand.StartByte,
			EndByte:   cand.EndByte,
			Content:   cand.Text,
			ParentKey: parentKey,
		}
		chunk.ComputeContentHash()
		chunks = append(chunks, chunk)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}
