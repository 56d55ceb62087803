package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newChunk(key, file string, parent *string) *Chunk {
	return &Chunk{
		Key:       key,
		FilePath:  file,
		Type:      ChunkFunction,
		Name:      key,
		StartLine: 1,
		EndLine:   2,
		StartByte: 0,
		EndByte:   10,
		ParentKey: parent,
	}
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name string
		path string
		typ  ChunkType
		sym  string
		row  int
		want string
	}{
		{"file chunk", "a.py", ChunkFile, "a.py", 0, "a.py:file:a.py:0"},
		{"method", "pkg/foo.py", ChunkMethod, "Foo.bar", 11, "pkg/foo.py:method:Foo.bar:11"},
		{"class", "src/Main.java", ChunkClass, "Main", 3, "src/Main.java:class:Main:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildKey(tt.path, tt.typ, tt.sym, tt.row))
		})
	}
}

func TestCandidateStartRow(t *testing.T) {
	c := Candidate{StartLine: 5}
	assert.Equal(t, 4, c.StartRow())
}

func TestHashContent(t *testing.T) {
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", HashContent([]byte("hello world")))

	c := &Chunk{Content: "hello world"}
	c.ComputeContentHash()
	assert.Equal(t, HashContent([]byte("hello world")), c.ContentHash)
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Chunk)
		wantErr bool
	}{
		{"valid", func(c *Chunk) {}, false},
		{"missing key", func(c *Chunk) { c.Key = "" }, true},
		{"missing file", func(c *Chunk) { c.FilePath = "" }, true},
		{"zero start line", func(c *Chunk) { c.StartLine = 0 }, true},
		{"end before start", func(c *Chunk) { c.EndLine = 0 }, true},
		{"bad byte range", func(c *Chunk) { c.EndByte = -1 }, true},
		{"self parent", func(c *Chunk) { c.ParentKey = strPtr(c.Key) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChunk("a.py:function:f:0", "a.py", nil)
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIntegrity)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHierarchy(t *testing.T) {
	t.Run("forest", func(t *testing.T) {
		chunks := []*Chunk{
			newChunk("Foo", "a.py", nil),
			newChunk("Foo.bar", "a.py", strPtr("Foo")),
			newChunk("Foo.bar.inner", "a.py", strPtr("Foo.bar")),
			newChunk("baz", "a.py", nil),
		}
		require.NoError(t, ValidateHierarchy(chunks))
	})

	t.Run("duplicate key", func(t *testing.T) {
		chunks := []*Chunk{
			newChunk("Foo", "a.py", nil),
			newChunk("Foo", "a.py", nil),
		}
		err := ValidateHierarchy(chunks)
		assert.ErrorIs(t, err, ErrDuplicateKey)
		assert.ErrorIs(t, err, ErrIntegrity)
	})

	t.Run("parent after child", func(t *testing.T) {
		chunks := []*Chunk{
			newChunk("Foo.bar", "a.py", strPtr("Foo")),
			newChunk("Foo", "a.py", nil),
		}
		assert.ErrorIs(t, ValidateHierarchy(chunks), ErrIntegrity)
	})

	t.Run("missing parent", func(t *testing.T) {
		chunks := []*Chunk{newChunk("Foo.bar", "a.py", strPtr("Foo"))}
		assert.ErrorIs(t, ValidateHierarchy(chunks), ErrIntegrity)
	})

	t.Run("parent in another file", func(t *testing.T) {
		chunks := []*Chunk{
			newChunk("Foo", "a.py", nil),
			newChunk("Foo.bar", "b.py", strPtr("Foo")),
		}
		assert.ErrorIs(t, ValidateHierarchy(chunks), ErrIntegrity)
	})

	t.Run("empty set", func(t *testing.T) {
		assert.NoError(t, ValidateHierarchy(nil))
	})
}

func TestParseExpandMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ExpandMode
		wantErr bool
	}{
		{"", ExpandNone, false},
		{"none", ExpandNone, false},
		{"Children", ExpandChildren, false},
		{" ancestors ", ExpandAncestors, false},
		{"siblings", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpandMode(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChunkType(t *testing.T) {
	for _, ct := range ChunkTypes {
		got, err := ParseChunkType(string(ct))
		require.NoError(t, err)
		assert.Equal(t, ct, got)
	}

	got, err := ParseChunkType(" Method ")
	require.NoError(t, err)
	assert.Equal(t, ChunkMethod, got)

	_, err = ParseChunkType("module")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
