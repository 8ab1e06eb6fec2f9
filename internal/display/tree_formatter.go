// Package display renders the project tree with its annotations for terminals.
package display

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/standardbeagle/tdmaps/internal/pathindex"
	"github.com/standardbeagle/tdmaps/internal/resolve"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// Node is one file or directory of a rendered tree
type Node struct {
	Name       string  `json:"name"`
	Key        string  `json:"key,omitempty"`
	IsDir      bool    `json:"is_dir,omitempty"`
	Annotation string  `json:"annotation,omitempty"`
	Color      string  `json:"color,omitempty"`
	Source     string  `json:"source,omitempty"`
	Depth      int     `json:"-"`
	Children   []*Node `json:"children,omitempty"`
}

// Tree is a project tree with resolved annotations
type Tree struct {
	Root      *Node `json:"root"`
	Files     int   `json:"files"`
	Dirs      int   `json:"dirs"`
	Annotated int   `json:"annotated"`
}

// Annotator resolves the annotation of one entry
type Annotator func(e resolve.Entry) (resolve.Result, bool)

// BuildTree arranges index entries under a root node named rootName and
// resolves each one. Directories sort before files, then by name.
func BuildTree(rootName string, entries []pathindex.Entry, annotate Annotator) *Tree {
	tree := &Tree{Root: &Node{Name: rootName, IsDir: true}}
	nodes := map[string]*Node{"": tree.Root}

	var parentOf func(key string) *Node
	parentOf = func(key string) *Node {
		dir := pathutil.Dir(key)
		if n, ok := nodes[dir]; ok {
			return n
		}
		// The index normally lists every directory; fill gaps for partial input
		n := &Node{Name: pathutil.Leaf(dir), Key: dir, IsDir: true}
		nodes[dir] = n
		p := parentOf(dir)
		n.Depth = p.Depth + 1
		p.Children = append(p.Children, n)
		tree.Dirs++
		return n
	}

	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if n, ok := nodes[e.Key]; ok {
			n.IsDir = e.IsDir
			continue
		}
		p := parentOf(e.Key)
		n := &Node{Name: e.Name(), Key: e.Key, IsDir: e.IsDir, Depth: p.Depth + 1}
		nodes[e.Key] = n
		p.Children = append(p.Children, n)
		if e.IsDir {
			tree.Dirs++
		} else {
			tree.Files++
		}
	}

	for key, n := range nodes {
		if key == "" || annotate == nil {
			continue
		}
		kind := resolve.FileEntry
		if n.IsDir {
			kind = resolve.DirectoryEntry
		}
		if r, ok := annotate(resolve.Entry{Path: key, Name: n.Name, Kind: kind}); ok {
			n.Annotation = r.Text
			n.Color = r.DisplayColor()
			n.Source = r.Source.String()
			tree.Annotated++
		}
	}
	sortNode(tree.Root)
	return tree
}

func sortNode(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	for _, c := range n.Children {
		sortNode(c)
	}
}

// TreeFormatter formats project trees for display
type TreeFormatter struct {
	options FormatterOptions
}

// FormatterOptions controls tree formatting
type FormatterOptions struct {
	Format        string // "text", "json", "compact"
	ShowSource    bool   // Append the layer each annotation came from
	AnnotatedOnly bool   // Drop subtrees without any annotation
	Color         bool   // Paint annotations with their text color (24-bit ANSI)
	MaxDepth      int    // Maximum depth to display, 0 for all
	Indent        string // Indentation string
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(options FormatterOptions) *TreeFormatter {
	if options.Indent == "" {
		options.Indent = "    "
	}
	return &TreeFormatter{options: options}
}

// Format formats a project tree for display
func (tf *TreeFormatter) Format(tree *Tree) string {
	if tree == nil || tree.Root == nil {
		return "No tree data available"
	}

	switch tf.options.Format {
	case "json":
		return tf.formatJSON(tree)
	case "compact":
		return tf.formatCompact(tree)
	default:
		return tf.formatText(tree)
	}
}

// formatText formats the tree as ASCII art
func (tf *TreeFormatter) formatText(tree *Tree) string {
	var sb strings.Builder
	sb.WriteString(tf.label(tree.Root))
	sb.WriteString("\n")

	children := tf.visible(tree.Root.Children)
	for i, child := range children {
		tf.formatNode(&sb, child, "", i == len(children)-1)
	}

	fmt.Fprintf(&sb, "\n%d directories, %d files, %d annotated\n", tree.Dirs, tree.Files, tree.Annotated)
	return sb.String()
}

// formatNode recursively formats a tree node
func (tf *TreeFormatter) formatNode(sb *strings.Builder, node *Node, prefix string, isLast bool) {
	if tf.options.MaxDepth > 0 && node.Depth > tf.options.MaxDepth {
		return
	}

	branch, childPrefix := "├── ", prefix+"│"+tf.options.Indent[1:]
	if isLast {
		branch, childPrefix = "└── ", prefix+tf.options.Indent
	}

	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(tf.label(node))
	sb.WriteString("\n")

	children := tf.visible(node.Children)
	for i, child := range children {
		tf.formatNode(sb, child, childPrefix, i == len(children)-1)
	}
}

func (tf *TreeFormatter) label(n *Node) string {
	name := n.Name
	if n.IsDir && n.Key != "" {
		name += "/"
	}
	if n.Annotation == "" {
		return name
	}

	text := n.Annotation
	if tf.options.Color {
		text = paint(text, n.Color)
	}
	label := name + "  " + text
	if tf.options.ShowSource && n.Source != "" {
		label += " [" + n.Source + "]"
	}
	return label
}

// visible returns the children to print under the current options
func (tf *TreeFormatter) visible(children []*Node) []*Node {
	if !tf.options.AnnotatedOnly {
		return children
	}
	out := children[:0:0]
	for _, c := range children {
		if hasAnnotation(c) {
			out = append(out, c)
		}
	}
	return out
}

func hasAnnotation(n *Node) bool {
	if n.Annotation != "" {
		return true
	}
	for _, c := range n.Children {
		if hasAnnotation(c) {
			return true
		}
	}
	return false
}

// paint wraps text in a 24-bit foreground color escape for a #RRGGBB color
func paint(text, color string) string {
	hex := strings.TrimPrefix(color, "#")
	if len(hex) != 6 {
		return text
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return text
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", rgb>>16&0xFF, rgb>>8&0xFF, rgb&0xFF, text)
}

// formatCompact lists annotated entries one per line as "key: annotation"
func (tf *TreeFormatter) formatCompact(tree *Tree) string {
	var lines []string
	var walk func(n *Node)
	walk = func(n *Node) {
		if tf.options.MaxDepth > 0 && n.Depth > tf.options.MaxDepth {
			return
		}
		if n.Annotation != "" {
			key := n.Key
			if n.IsDir {
				key += "/"
			}
			line := key + ": " + n.Annotation
			if tf.options.ShowSource {
				line += " [" + n.Source + "]"
			}
			lines = append(lines, line)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(tree.Root)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// formatJSON formats the tree as indented JSON
func (tf *TreeFormatter) formatJSON(tree *Tree) string {
	out := tree
	if tf.options.AnnotatedOnly || tf.options.MaxDepth > 0 {
		out = &Tree{Root: tf.prune(tree.Root), Files: tree.Files, Dirs: tree.Dirs, Annotated: tree.Annotated}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data) + "\n"
}

// prune copies n keeping only the children the options allow
func (tf *TreeFormatter) prune(n *Node) *Node {
	cp := *n
	cp.Children = nil
	if tf.options.MaxDepth > 0 && n.Depth >= tf.options.MaxDepth {
		return &cp
	}
	for _, c := range tf.visible(n.Children) {
		cp.Children = append(cp.Children, tf.prune(c))
	}
	return &cp
}
