package parser

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/kaze/pkg/types"
)

// Parser turns the content of one source file into chunk candidates.
//
// Candidates are returned depth-first with every parent before its
// children; ParentIndex points at an earlier element or is -1.
type Parser interface {
	Language() string
	Extensions() []string
	Parse(ctx context.Context, content []byte) ([]types.Candidate, error)
}

// Registry maps lower-case file extensions to parsers
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Parser
}

// NewRegistry creates a registry holding the given parsers
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds p for each of its extensions, replacing earlier registrations
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForPath returns the parser for the file's extension. A false result is
// not an error: callers fall back to whole-file chunks.
func (r *Registry) ForPath(path string) (Parser, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[ext]
	return p, ok
}

// Languages lists the registered languages, sorted
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var langs []string
	for _, p := range r.byExt {
		if !seen[p.Language()] {
			seen[p.Language()] = true
			langs = append(langs, p.Language())
		}
	}
	sort.Strings(langs)
	return langs
}

// DefaultRegistry returns a registry with every built-in parser
func DefaultRegistry() *Registry {
	parsers := []Parser{NewGoParser()}
	parsers = append(parsers, treeSitterParsers()...)
	return NewRegistry(parsers...)
}
