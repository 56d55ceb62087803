package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relPaths(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestDiscover_DefaultExclusions(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"main.go",
		"pkg/util.py",
		".git/config",
		".kaze/embeddings.db",
		"node_modules/x/index.js",
		"build/out.js",
		"dist/bundle.js",
		"venv/lib/site.py",
		"app/__pycache__/m.pyc",
		".pytest_cache/v",
		".idea/workspace.xml",
		"docs/.hidden.md",
	} {
		createTestFile(t, root, name, "x")
	}

	found, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	assert.False(t, found.GitIgnore)
	assert.Equal(t, []string{"docs/.hidden.md", "main.go", "pkg/util.py"}, relPaths(found.Files))

	for _, f := range found.Files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, int64(1), f.Size)
	}
}

func TestDiscover_Globs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "a_test.go", "b.py", "internal/c.go", "internal/gen/d.go"} {
		createTestFile(t, root, name, "x")
	}

	tests := []struct {
		name string
		opts DiscoverOptions
		want []string
	}{
		{"include by extension", DiscoverOptions{Include: []string{"*.go"}}, []string{"a.go", "a_test.go", "internal/c.go", "internal/gen/d.go"}},
		{"exclude tests", DiscoverOptions{Include: []string{"*.go"}, Exclude: []string{"*_test.go"}}, []string{"a.go", "internal/c.go", "internal/gen/d.go"}},
		{"exclude directory", DiscoverOptions{Exclude: []string{"internal/gen"}}, []string{"a.go", "a_test.go", "b.py", "internal/c.go"}},
		{"include subtree", DiscoverOptions{Include: []string{"internal/**"}}, []string{"internal/c.go", "internal/gen/d.go"}},
		{"relative path glob", DiscoverOptions{Include: []string{"internal/*.go"}}, []string{"internal/c.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := Discover(root, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relPaths(found.Files))
		})
	}
}

func TestDiscover_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "small.txt", "tiny")
	createTestFile(t, root, "large.txt", strings.Repeat("x", 2048+1))

	found, err := Discover(root, DiscoverOptions{MaxFileSizeKB: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, relPaths(found.Files))
	assert.Equal(t, []string{"large.txt"}, found.Oversized)

	found, err = Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	assert.Len(t, found.Files, 2)
	assert.Empty(t, found.Oversized)
}

func TestDiscover_GitIgnore(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"main.go",
		"debug.log",
		".github/workflows/ci.yml",
		".venv/lib/site.py",
		"target/out.rs",
		"gen/api.pb.go",
		"gen/keep.go",
		"pkg/local.tmp",
		"pkg/util.go",
		"build/script.sh",
		".git/HEAD",
		".kaze/embeddings.db",
	} {
		createTestFile(t, root, name, "x")
	}
	createTestFile(t, root, ".gitignore", ".venv/\ntarget/\n*.log\ngen/*.pb.go\n")
	createTestFile(t, root, "pkg/.gitignore", "*.tmp\n")

	found, err := Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	assert.True(t, found.GitIgnore)
	assert.Equal(t, []string{
		".github/workflows/ci.yml",
		".gitignore",
		"build/script.sh",
		"gen/keep.go",
		"main.go",
		"pkg/.gitignore",
		"pkg/util.go",
	}, relPaths(found.Files))

	t.Run("needs a git work tree", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(filepath.Join(root, ".git")))
		found, err := Discover(root, DiscoverOptions{})
		require.NoError(t, err)
		assert.False(t, found.GitIgnore)
		assert.Contains(t, relPaths(found.Files), "debug.log")
		assert.NotContains(t, relPaths(found.Files), "build/script.sh")
	})
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), DiscoverOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Discover(t.TempDir(), DiscoverOptions{Include: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("package main\n")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))

	late := append([]byte(strings.Repeat("a", binarySniffLen)), 0)
	assert.False(t, IsBinary(late), "only the first 8 KiB are inspected")
}
