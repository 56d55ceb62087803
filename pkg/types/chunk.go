package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ChunkType represents the kind of code unit a chunk covers
type ChunkType string

const (
	ChunkFile          ChunkType = "file"
	ChunkClass         ChunkType = "class"
	ChunkFunction      ChunkType = "function"
	ChunkMethod        ChunkType = "method"
	ChunkConstructor   ChunkType = "constructor"
	ChunkInterface     ChunkType = "interface"
	ChunkArrowFunction ChunkType = "arrow_function"
	ChunkEnum          ChunkType = "enum"
	ChunkTypeDecl      ChunkType = "type"
	ChunkConstGroup    ChunkType = "const_group"
	ChunkVarGroup      ChunkType = "var_group"
)

// ChunkTypes lists every chunk type
var ChunkTypes = []ChunkType{
	ChunkFile, ChunkClass, ChunkFunction, ChunkMethod, ChunkConstructor, ChunkInterface,
	ChunkArrowFunction, ChunkEnum, ChunkTypeDecl, ChunkConstGroup, ChunkVarGroup,
}

// ParseChunkType converts user input into a ChunkType
func ParseChunkType(s string) (ChunkType, error) {
	t := ChunkType(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(ChunkTypes, t) {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown chunk type %q", ErrInvalidRequest, s)
}

// Chunk is one embeddable unit of source text: a whole file or a parsed construct
type Chunk struct {
	// Identification
	Key      string    `json:"id"`
	FilePath string    `json:"file_path"` // Relative to project root
	Type     ChunkType `json:"type"`
	Name     string    `json:"name"`

	// Location (lines are 1-based, bytes are 0-based offsets into the file)
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`

	// Content
	Content     string `json:"content,omitempty"`
	ContentHash string `json:"content_hash"`

	// Hierarchy: weak reference by key, nil for top-level chunks
	ParentKey *string `json:"parent_id,omitempty"`

	// Embedding
	Vector []float32 `json:"-"`
	Model  string    `json:"model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTopLevel reports whether the chunk has no parent
func (c *Chunk) IsTopLevel() bool {
	return c.ParentKey == nil
}

// Parent returns the parent key or the empty string
func (c *Chunk) Parent() string {
	if c.ParentKey == nil {
		return ""
	}
	return *c.ParentKey
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = HashContent([]byte(c.Content))
}

// Validate checks the positional and identity fields of a chunk
func (c *Chunk) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: chunk key is required", ErrIntegrity)
	}
	if c.FilePath == "" {
		return fmt.Errorf("%w: chunk %s has no file path", ErrIntegrity, c.Key)
	}
	if c.StartLine <= 0 || c.EndLine < c.StartLine {
		return fmt.Errorf("%w: chunk %s has invalid line range %d-%d", ErrIntegrity, c.Key, c.StartLine, c.EndLine)
	}
	if c.StartByte < 0 || c.EndByte < c.StartByte {
		return fmt.Errorf("%w: chunk %s has invalid byte range %d-%d", ErrIntegrity, c.Key, c.StartByte, c.EndByte)
	}
	if c.ParentKey != nil && *c.ParentKey == c.Key {
		return fmt.Errorf("%w: chunk %s is its own parent", ErrIntegrity, c.Key)
	}
	return nil
}

// Candidate is a chunk proposal produced by a parser, before keys are assigned.
// ParentIndex refers to an earlier candidate in the same sequence, -1 for none.
type Candidate struct {
	Type        ChunkType
	Name        string
	StartLine   int
	EndLine     int
	StartByte   int
	EndByte     int
	ParentIndex int
	Text        string
}

// StartRow returns the 0-based row the candidate starts on
func (c Candidate) StartRow() int {
	return c.StartLine - 1
}

// BuildKey formats a chunk key as {path}:{type}:{name}:{row}
func BuildKey(relPath string, chunkType ChunkType, name string, startRow int) string {
	return fmt.Sprintf("%s:%s:%s:%d", relPath, chunkType, name, startRow)
}

// HashContent returns the hex SHA-256 of content
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// ValidateHierarchy checks that a file's chunk set forms a forest: keys are
// unique, every parent is present earlier in the set and belongs to the same file.
func ValidateHierarchy(chunks []*Chunk) error {
	seen := make(map[string]*Chunk, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, c.Key)
		}
		if c.ParentKey != nil {
			parent, ok := seen[*c.ParentKey]
			if !ok {
				return fmt.Errorf("%w: parent %s of %s is not an earlier chunk", ErrIntegrity, *c.ParentKey, c.Key)
			}
			if parent.FilePath != c.FilePath {
				return fmt.Errorf("%w: parent %s of %s belongs to another file", ErrIntegrity, parent.Key, c.Key)
			}
		}
		seen[c.Key] = c
	}
	return nil
}
