// Package extract turns the leading documentation comment of source files
// into file annotations.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// MaxLines is how much of each file is searched for a doc comment
const MaxLines = 100

// javadocPattern is used for Java when no parser is available; it takes the
// first content line of the first /** block
var javadocPattern = regexp.MustCompile(`(?s)/\*\*\s*\n\s*\*\s*(.+?)\s*(?:\n|\*/)`)

var whitespace = regexp.MustCompile(`\s+`)

// Annotator receives extracted annotations
type Annotator interface {
	SetAnnotationAndRefresh(path, text, color string) error
}

// Options configures an Extractor
type Options struct {
	Root        string
	Exclude     []string // doublestar globs over project-relative keys
	Concurrency int
}

// Extractor reads doc comments from source files
type Extractor struct {
	opts Options
}

// New creates an extractor
func New(opts Options) *Extractor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Extractor{opts: opts}
}

// Supported reports whether path has an extension with a registered grammar
func Supported(path string) bool {
	_, ok := languages[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Collect expands files and directories into the supported source files below them
func (x *Extractor) Collect(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if seen[p] || x.excluded(p) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	pattern := sourceGlob()
	for _, p := range paths {
		if x.opts.Root != "" {
			if _, inside := pathutil.RelativeKey(p, x.opts.Root); !inside {
				return nil, tderrors.NewFileError("extract", p, tderrors.ErrOutsideRoot)
			}
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, tderrors.NewFileError("stat", p, err)
		}
		if !info.IsDir() {
			if Supported(p) {
				add(filepath.Clean(p))
			}
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(p), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("collect sources under %s: %w", p, err)
		}
		for _, m := range matches {
			add(filepath.Join(p, filepath.FromSlash(m)))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (x *Extractor) excluded(absPath string) bool {
	key, ok := pathutil.RelativeKey(absPath, x.opts.Root)
	if !ok {
		return false
	}
	for _, pattern := range x.opts.Exclude {
		if matched, err := doublestar.Match(pattern, key); err == nil && matched {
			return true
		}
	}
	return false
}

// Comment returns the first line of the doc comment of the file at path, or
// "" when it has none
func (x *Extractor) Comment(path string) (string, error) {
	head, err := readHead(path, MaxLines)
	if err != nil {
		return "", err
	}
	return CommentOf(filepath.Ext(path), head), nil
}

func readHead(path string, maxLines int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tderrors.NewFileError("open", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lines := 0; lines < maxLines && scanner.Scan(); lines++ {
		buf.Write(scanner.Bytes())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, tderrors.NewFileError("read", path, err)
	}
	return buf.Bytes(), nil
}

// CommentOf extracts the doc comment line from source of the given extension
func CommentOf(ext string, source []byte) string {
	lang, ok := languages[strings.ToLower(ext)]
	if !ok {
		return ""
	}
	if text, ok := parseComment(lang, source); ok {
		return text
	}
	if lang.name == "java" {
		return javadocFallback(string(source))
	}
	return ""
}

// javadocFallback applies the regular expression used when parsing fails
func javadocFallback(content string) string {
	m := javadocPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return collapse(m[1])
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// parseComment reports ok=false only when the grammar could not be used
func parseComment(lang *language, source []byte) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log("EXTRACT", "tree-sitter panic for %s: %v\n", lang.name, r)
			text, ok = "", false
		}
	}()

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang.load()); err != nil {
		return "", false
	}

	// The parser may write to its input
	buf := make([]byte, len(source))
	copy(buf, source)
	tree := parser.Parse(buf, nil)
	if tree == nil {
		return "", false
	}
	defer tree.Close()

	root := tree.RootNode()
	switch lang.style {
	case stylePythonModule:
		return pythonDocstring(root, buf), true
	case styleGoPackage:
		return goPackageComment(root, buf), true
	}

	var found string
	walk(root, func(n *tree_sitter.Node) bool {
		if !strings.Contains(n.Kind(), "comment") {
			return true
		}
		if line := docLine(lang.style, nodeText(n, buf)); line != "" {
			found = line
			return false
		}
		return true
	})
	return found, true
}

// walk visits nodes depth-first in source order until visit returns false
func walk(n *tree_sitter.Node, visit func(*tree_sitter.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil && !walk(child, visit) {
			return false
		}
	}
	return true
}

func nodeText(n *tree_sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}

// docLine returns the first content line of a comment in the given style, or
// "" when the comment is not documentation
func docLine(style docStyle, comment string) string {
	switch {
	case strings.HasPrefix(comment, "/**") && !strings.HasPrefix(comment, "/**/"):
		return firstBlockLine(comment)
	case style == styleJavadoc:
		return ""
	case strings.HasPrefix(comment, "///") && !strings.HasPrefix(comment, "////"):
		return collapse(strings.TrimPrefix(comment, "///"))
	case style == styleRustLine && strings.HasPrefix(comment, "//!"):
		return collapse(strings.TrimPrefix(comment, "//!"))
	}
	return ""
}

// firstBlockLine returns the first line of a /** */ or /* */ block that is
// not empty and not a tag
func firstBlockLine(comment string) string {
	body := strings.TrimPrefix(comment, "/**")
	if body == comment {
		body = strings.TrimPrefix(comment, "/*")
	}
	body = strings.TrimSuffix(body, "*/")
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "*"))
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		return collapse(line)
	}
	return ""
}

// goPackageComment returns the first line of the comment group directly
// above the package clause
func goPackageComment(root *tree_sitter.Node, source []byte) string {
	var group []*tree_sitter.Node
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "comment":
			// A blank line ends the group
			if n := len(group); n > 0 && child.StartPosition().Row > group[n-1].EndPosition().Row+1 {
				group = group[:0]
			}
			group = append(group, child)
		case "package_clause":
			if n := len(group); n == 0 || child.StartPosition().Row > group[n-1].EndPosition().Row+1 {
				return ""
			}
			return firstGoLine(group, source)
		default:
			return ""
		}
	}
	return ""
}

func firstGoLine(group []*tree_sitter.Node, source []byte) string {
	for _, n := range group {
		text := nodeText(n, source)
		if strings.HasPrefix(text, "/*") {
			if line := firstBlockLine(text); line != "" {
				return line
			}
			continue
		}
		if line := collapse(strings.TrimPrefix(text, "//")); line != "" && !strings.HasPrefix(line, "go:") {
			return line
		}
	}
	return ""
}

// pythonDocstring returns the first line of the module docstring
func pythonDocstring(root *tree_sitter.Node, source []byte) string {
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		if child.Kind() != "expression_statement" || child.ChildCount() == 0 {
			return ""
		}
		str := child.Child(0)
		if str == nil || str.Kind() != "string" {
			return ""
		}
		text := strings.TrimLeft(nodeText(str, source), "rRuUbBfF")
		for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
			if strings.HasPrefix(text, quote) {
				text = strings.TrimSuffix(strings.TrimPrefix(text, quote), quote)
				break
			}
		}
		for _, line := range strings.Split(text, "\n") {
			if line = collapse(line); line != "" {
				return line
			}
		}
		return ""
	}
	return ""
}

// Report summarizes a run
type Report struct {
	Total     int     // Source files inspected
	Succeeded int     // Annotations set
	Errors    []error // Files that could not be read or annotated
}

// Run extracts comments from every source file under paths and sets each as
// the file's annotation with color. Files without a doc comment are skipped.
func (x *Extractor) Run(ctx context.Context, a Annotator, paths []string, color string) (Report, error) {
	files, err := x.Collect(paths)
	if err != nil {
		return Report{}, err
	}
	report := Report{Total: len(files)}
	comments := make([]string, len(files))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			text, err := x.Comment(path)
			if err != nil {
				mu.Lock()
				report.Errors = append(report.Errors, err)
				mu.Unlock()
				return nil
			}
			comments[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for i, path := range files {
		if comments[i] == "" {
			continue
		}
		key, ok := pathutil.RelativeKey(path, x.opts.Root)
		if !ok {
			report.Errors = append(report.Errors, tderrors.NewFileError("annotate", path, tderrors.ErrOutsideRoot))
			continue
		}
		if err := a.SetAnnotationAndRefresh(key, comments[i], color); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Succeeded++
	}
	debug.Log("EXTRACT", "%d of %d files annotated\n", report.Succeeded, report.Total)
	return report, nil
}

// Walkable reports whether p is a file or directory Run can use
func Walkable(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir() || (info.Mode().IsRegular() && Supported(p))
}
