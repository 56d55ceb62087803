package indexer

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/rs/zerolog/log"
)

// DefaultExcludeDirs are directory name patterns never descended into when
// the project has no .gitignore
var DefaultExcludeDirs = []string{
	".git",
	".kaze",
	"node_modules",
	"build",
	"dist",
	"venv",
	"__pycache__",
	".*cache",
}

// alwaysSkipDirs are skipped even when .gitignore rules apply
var alwaysSkipDirs = []string{".git", ".kaze"}

// binarySniffLen is how much of a file is checked for NUL bytes
const binarySniffLen = 8 * 1024

// SourceFile is a file found by discovery
type SourceFile struct {
	Path    string // Absolute
	RelPath string // Slash-separated, relative to the root
	Size    int64
	ModTime time.Time
}

// DiscoverOptions controls which files are considered
type DiscoverOptions struct {
	Include       []string // Globs; when set, a file must match one
	Exclude       []string // Globs; a matching file or directory is skipped
	MaxFileSizeKB int      // 0 disables the limit
}

// Discovery is the outcome of walking a project
type Discovery struct {
	Files     []SourceFile
	Oversized []string // Eligible files skipped for exceeding the size limit
	GitIgnore bool     // .gitignore rules replaced the default exclusions
}

// matchAny reports whether rel (or its base name) matches one of the globs.
// Malformed patterns never match.
func matchAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		// "dir/**" style prefixes
		if prefix, found := strings.CutSuffix(p, "/**"); found && (rel == prefix || strings.HasPrefix(rel, prefix+"/")) {
			return true
		}
	}
	return false
}

func excludedDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, p := range DefaultExcludeDirs {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// validatePatterns rejects malformed globs up front
func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("bad pattern %q: %w", p, err)
		}
	}
	return nil
}

// gitIgnoreMatcher loads every .gitignore under root when root is a git
// work tree with a top-level .gitignore. It returns nil otherwise.
func gitIgnoreMatcher(root string) gitignore.Matcher {
	if fi, err := os.Stat(filepath.Join(root, ".git")); err != nil || !fi.IsDir() {
		return nil
	}
	if fi, err := os.Stat(filepath.Join(root, ".gitignore")); err != nil || !fi.Mode().IsRegular() {
		return nil
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		log.Warn().Err(err).Msg("cannot read .gitignore rules, using default exclusions")
		return nil
	}
	return gitignore.NewMatcher(patterns)
}

// Discover walks root and returns candidate files in lexical order.
// In a git work tree with a .gitignore, ignored paths are skipped; otherwise
// hidden and default-excluded directories are. Symlinks are never followed.
// Content checks (binary, empty) happen on read.
func Discover(root string, opts DiscoverOptions) (*Discovery, error) {
	if err := validatePatterns(opts.Include); err != nil {
		return nil, err
	}
	if err := validatePatterns(opts.Exclude); err != nil {
		return nil, err
	}

	skipDir := func(rel, name string) bool { return excludedDir(name) }
	skipFile := func(rel string) bool { return false }

	result := &Discovery{}
	if m := gitIgnoreMatcher(root); m != nil {
		result.GitIgnore = true
		skipDir = func(rel, name string) bool {
			return slices.Contains(alwaysSkipDirs, name) || m.Match(strings.Split(rel, "/"), true)
		}
		skipFile = func(rel string) bool { return m.Match(strings.Split(rel, "/"), false) }
		log.Debug().Str("root", root).Msg("applying .gitignore rules")
	}

	maxBytes := int64(opts.MaxFileSizeKB) * 1024

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			log.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p == root {
				return nil
			}
			if skipDir(rel, d.Name()) || matchAny(opts.Exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || skipFile(rel) {
			return nil
		}
		if matchAny(opts.Exclude, rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("skipping file")
			return nil
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			log.Debug().Str("file", rel).Int64("size", info.Size()).Msg("skipping file over size limit")
			result.Oversized = append(result.Oversized, rel)
			return nil
		}

		result.Files = append(result.Files, SourceFile{
			Path:    p,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsBinary reports whether content looks binary: a NUL byte in the first 8 KiB
func IsBinary(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), binarySniffLen)], 0) >= 0
}
