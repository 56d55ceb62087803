package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/dshills/kaze/pkg/types"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.max), tt.in)
	}
}

func TestRenderTree(t *testing.T) {
	color.NoColor = true
	parent := func(k string) *string { return &k }

	chunks := []*types.Chunk{
		{Key: "a.py:class:Foo:0", Type: types.ChunkClass, Name: "Foo", StartLine: 1, EndLine: 9},
		{Key: "a.py:method:Foo.bar:4", Type: types.ChunkMethod, Name: "Foo.bar", StartLine: 5, EndLine: 6, ParentKey: parent("a.py:class:Foo:0")},
		{Key: "a.py:method:Foo.baz:6", Type: types.ChunkMethod, Name: "Foo.baz", StartLine: 7, EndLine: 9, ParentKey: parent("a.py:class:Foo:0")},
		{Key: "a.py:function:helper:10", Type: types.ChunkFunction, Name: "helper", StartLine: 11, EndLine: 12},
		// Parent not in the listed set
		{Key: "b.py:method:Gone.x:3", Type: types.ChunkMethod, Name: "Gone.x", StartLine: 4, EndLine: 5, ParentKey: parent("b.py:class:Gone:0")},
	}

	var buf bytes.Buffer
	renderTree(&buf, "chunks", chunks)

	want := strings.Join([]string{
		"chunks",
		"├── class:Foo (lines 1-9)",
		"│   ├── method:Foo.bar (lines 5-6)",
		"│   └── method:Foo.baz (lines 7-9)",
		"├── function:helper (lines 11-12)",
		"└── method:Gone.x (lines 4-5)",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPrintNumbered(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printNumbered(&buf, "a\nb", 41)
	assert.Equal(t, "     41 a\n     42 b\n", buf.String())
}
