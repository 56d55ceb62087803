//go:build cgo

package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/kaze/pkg/types"
)

type wantCandidate struct {
	typ    types.ChunkType
	name   string
	parent int
}

func summarize(candidates []types.Candidate) []wantCandidate {
	out := make([]wantCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = wantCandidate{c.Type, c.Name, c.ParentIndex}
	}
	return out
}

func assertWellFormed(t *testing.T, content string, candidates []types.Candidate) {
	t.Helper()
	for i, c := range candidates {
		assert.Less(t, c.ParentIndex, i, "parent must precede child")
		assert.Equal(t, content[c.StartByte:c.EndByte], c.Text)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		if c.ParentIndex >= 0 {
			p := candidates[c.ParentIndex]
			assert.GreaterOrEqual(t, c.StartByte, p.StartByte)
			assert.LessOrEqual(t, c.EndByte, p.EndByte)
		}
	}
}

func TestPythonParser(t *testing.T) {
	content := `import os

class Foo:
    def bar(self):
        def helper():
            return 1
        return helper()

    @staticmethod
    def baz():
        pass

def top():
    pass
`
	candidates, err := NewPythonParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	assertWellFormed(t, content, candidates)

	assert.Equal(t, []wantCandidate{
		{types.ChunkClass, "Foo", -1},
		{types.ChunkMethod, "Foo.bar", 0},
		{types.ChunkFunction, "Foo.bar.helper", 1},
		{types.ChunkMethod, "Foo.baz", 0},
		{types.ChunkFunction, "top", -1},
	}, summarize(candidates))

	assert.Equal(t, 3, candidates[0].StartLine)
	assert.Equal(t, 2, candidates[0].StartRow())
	assert.Equal(t, 4, candidates[1].StartLine)
}

func TestJavaParser(t *testing.T) {
	content := `package demo;

public class Greeter {
    private final String name;

    public Greeter(String name) {
        this.name = name;
    }

    public String greet() {
        return "hi " + name;
    }

    interface Listener {
        void onGreet(String who);
    }

    enum Mood { HAPPY, SAD }
}
`
	candidates, err := NewJavaParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	assertWellFormed(t, content, candidates)

	assert.Equal(t, []wantCandidate{
		{types.ChunkClass, "Greeter", -1},
		{types.ChunkConstructor, "Greeter.Greeter", 0},
		{types.ChunkMethod, "Greeter.greet", 0},
		{types.ChunkInterface, "Greeter.Listener", 0},
		{types.ChunkMethod, "Greeter.Listener.onGreet", 3},
		{types.ChunkEnum, "Greeter.Mood", 0},
	}, summarize(candidates))
}

func TestTypeScriptParser(t *testing.T) {
	content := `interface Shape {
  area(): number;
}

type Point = { x: number; y: number };

export class Circle implements Shape {
  constructor(private r: number) {}

  area(): number {
    return Math.PI * this.r * this.r;
  }
}

export function makeCircle(r: number): Circle {
  return new Circle(r);
}

const double = (n: number) => n * 2;

[1, 2].map((n) => n + 1);
`
	candidates, err := NewTypeScriptParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	assertWellFormed(t, content, candidates)

	assert.Equal(t, []wantCandidate{
		{types.ChunkInterface, "Shape", -1},
		{types.ChunkTypeDecl, "Point", -1},
		{types.ChunkClass, "Circle", -1},
		{types.ChunkMethod, "Circle.constructor", 2},
		{types.ChunkMethod, "Circle.area", 2},
		{types.ChunkFunction, "makeCircle", -1},
		{types.ChunkArrowFunction, "double", -1},
	}, summarize(candidates))
}

func TestJavaScriptParser_NestedArrows(t *testing.T) {
	content := `function outer() {
  const inner = () => {
    return [1].map((x) => x);
  };
  return inner;
}
`
	candidates, err := NewJavaScriptParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	assertWellFormed(t, content, candidates)

	assert.Equal(t, []wantCandidate{
		{types.ChunkFunction, "outer", -1},
		{types.ChunkArrowFunction, "outer.inner", 0},
	}, summarize(candidates))
}

func TestTSXParser(t *testing.T) {
	content := `export const Button = (props: { label: string }) => <button>{props.label}</button>;
`
	candidates, err := NewTSXParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.ChunkArrowFunction, candidates[0].Type)
	assert.Equal(t, "Button", candidates[0].Name)
}

func TestTreeSitterParser_RecoversFromSyntaxErrors(t *testing.T) {
	content := "def ok():\n    pass\n\ndef broken(:\n"
	candidates, err := NewPythonParser().Parse(context.Background(), []byte(content))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "ok", candidates[0].Name)
}

func TestDefaultRegistry_TreeSitterLanguages(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"go", "java", "javascript", "python", "tsx", "typescript"}, reg.Languages())

	for path, lang := range map[string]string{
		"a.py":   "python",
		"A.java": "java",
		"a.jsx":  "javascript",
		"a.ts":   "typescript",
		"a.tsx":  "tsx",
	} {
		p, ok := reg.ForPath(path)
		require.True(t, ok, path)
		assert.Equal(t, lang, p.Language(), path)
	}
}
