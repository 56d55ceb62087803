package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/kaze/pkg/types"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	typeColor   = color.New(color.FgCyan)
	nameColor   = color.New(color.FgYellow, color.Bold)
	scoreColor  = color.New(color.FgGreen, color.Bold)
	dimColor    = color.New(color.Faint)
	warnColor   = color.New(color.FgRed)
)

// printJSON writes v as indented JSON followed by a newline
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// truncate shortens a string to maxLen runes, adding "..." if truncated
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// chunkLabel renders "type:name (lines a-b)"
func chunkLabel(c *types.Chunk) string {
	return fmt.Sprintf("%s:%s %s",
		typeColor.Sprint(c.Type),
		nameColor.Sprint(c.Name),
		dimColor.Sprintf("(lines %d-%d)", c.StartLine, c.EndLine))
}

// printNumbered writes text with file line numbers starting at first
func printNumbered(w io.Writer, text string, first int) {
	for i, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "  %s %s\n", dimColor.Sprintf("%5d", first+i), line)
	}
}

// renderTree draws chunks as a forest. Chunks whose parent is not in the set
// are drawn as roots.
func renderTree(w io.Writer, title string, chunks []*types.Chunk) {
	present := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		present[c.Key] = true
	}

	children := make(map[string][]*types.Chunk)
	var roots []*types.Chunk
	for _, c := range chunks {
		if c.ParentKey == nil || !present[*c.ParentKey] {
			roots = append(roots, c)
			continue
		}
		children[*c.ParentKey] = append(children[*c.ParentKey], c)
	}

	headerColor.Fprintln(w, title)
	var walk func(nodes []*types.Chunk, prefix string)
	walk = func(nodes []*types.Chunk, prefix string) {
		for i, c := range nodes {
			branch, next := "├── ", "│   "
			if i == len(nodes)-1 {
				branch, next = "└── ", "    "
			}
			fmt.Fprintf(w, "%s%s%s\n", prefix, branch, chunkLabel(c))
			walk(children[c.Key], prefix+next)
		}
	}
	walk(roots, "")
}
