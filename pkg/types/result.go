package types

import (
	"fmt"
	"strings"
)

// ExpandMode selects which related chunks are attached to each query result
type ExpandMode string

const (
	ExpandNone      ExpandMode = "none"
	ExpandChildren  ExpandMode = "children"
	ExpandAncestors ExpandMode = "ancestors"
)

// ParseExpandMode converts user input into an ExpandMode; empty means none
func ParseExpandMode(s string) (ExpandMode, error) {
	switch ExpandMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExpandNone:
		return ExpandNone, nil
	case ExpandChildren:
		return ExpandChildren, nil
	case ExpandAncestors:
		return ExpandAncestors, nil
	default:
		return "", fmt.Errorf("%w: unknown expand mode %q", ErrInvalidRequest, s)
	}
}

// QueryResult is one ranked chunk with its similarity score
type QueryResult struct {
	Rank  int     `json:"rank"` // 1-based
	Score float64 `json:"score"`
	Chunk *Chunk  `json:"chunk"`

	// Populated only when expansion was requested
	Children  []*Chunk `json:"children,omitempty"`
	Ancestors []*Chunk `json:"ancestors,omitempty"`
}
