//go:build cgo

package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/kaze/pkg/types"
)

func treeSitterParsers() []Parser {
	return []Parser{
		NewPythonParser(),
		NewJavaParser(),
		NewJavaScriptParser(),
		NewTypeScriptParser(),
		NewTSXParser(),
	}
}

// NewPythonParser extracts classes and functions; a function directly inside
// a class is a method.
func NewPythonParser() *TreeSitterParser {
	return &TreeSitterParser{
		language:   "python",
		extensions: []string{".py", ".pyi"},
		grammar:    python.GetLanguage(),
		classify:   classifyPython,
	}
}

func classifyPython(node *sitter.Node, enclosing types.ChunkType, src []byte) (types.ChunkType, string, bool) {
	switch node.Type() {
	case "class_definition":
		return types.ChunkClass, fieldName(node, src), true
	case "function_definition":
		if enclosing == types.ChunkClass {
			return types.ChunkMethod, fieldName(node, src), true
		}
		return types.ChunkFunction, fieldName(node, src), true
	}
	return "", "", false
}

// NewJavaParser extracts classes, interfaces, enums, methods and constructors
func NewJavaParser() *TreeSitterParser {
	return &TreeSitterParser{
		language:   "java",
		extensions: []string{".java"},
		grammar:    java.GetLanguage(),
		classify:   classifyJava,
	}
}

func classifyJava(node *sitter.Node, _ types.ChunkType, src []byte) (types.ChunkType, string, bool) {
	switch node.Type() {
	case "class_declaration", "record_declaration":
		return types.ChunkClass, fieldName(node, src), true
	case "interface_declaration":
		return types.ChunkInterface, fieldName(node, src), true
	case "enum_declaration":
		return types.ChunkEnum, fieldName(node, src), true
	case "method_declaration":
		return types.ChunkMethod, fieldName(node, src), true
	case "constructor_declaration":
		return types.ChunkConstructor, fieldName(node, src), true
	}
	return "", "", false
}

// NewJavaScriptParser handles JavaScript and JSX
func NewJavaScriptParser() *TreeSitterParser {
	return &TreeSitterParser{
		language:   "javascript",
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		grammar:    javascript.GetLanguage(),
		classify:   classifyECMAScript,
	}
}

// NewTypeScriptParser handles .ts files
func NewTypeScriptParser() *TreeSitterParser {
	return &TreeSitterParser{
		language:   "typescript",
		extensions: []string{".ts", ".mts", ".cts"},
		grammar:    typescript.GetLanguage(),
		classify:   classifyECMAScript,
	}
}

// NewTSXParser handles .tsx files, which need their own grammar
func NewTSXParser() *TreeSitterParser {
	return &TreeSitterParser{
		language:   "tsx",
		extensions: []string{".tsx"},
		grammar:    tsx.GetLanguage(),
		classify:   classifyECMAScript,
	}
}

func classifyECMAScript(node *sitter.Node, _ types.ChunkType, src []byte) (types.ChunkType, string, bool) {
	switch node.Type() {
	case "class_declaration", "abstract_class_declaration":
		return types.ChunkClass, fieldName(node, src), true
	case "function_declaration", "generator_function_declaration":
		return types.ChunkFunction, fieldName(node, src), true
	case "method_definition":
		return types.ChunkMethod, fieldName(node, src), true
	case "interface_declaration":
		return types.ChunkInterface, fieldName(node, src), true
	case "type_alias_declaration":
		return types.ChunkTypeDecl, fieldName(node, src), true
	case "enum_declaration":
		return types.ChunkEnum, fieldName(node, src), true
	case "arrow_function":
		// Anonymous arrow functions are skipped; their bodies are still walked
		if name, ok := arrowFunctionName(node, src); ok {
			return types.ChunkArrowFunction, name, true
		}
	}
	return "", "", false
}

// arrowFunctionName names an arrow function after the variable or class
// field it is assigned to.
func arrowFunctionName(node *sitter.Node, src []byte) (string, bool) {
	parent := node.Parent()
	if parent == nil {
		return "", false
	}
	switch parent.Type() {
	case "variable_declarator", "public_field_definition":
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() != "object_pattern" && name.Type() != "array_pattern" {
			return name.Content(src), true
		}
	case "field_definition":
		if prop := parent.ChildByFieldName("property"); prop != nil {
			return prop.Content(src), true
		}
	}
	return "", false
}
