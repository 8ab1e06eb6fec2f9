package extract

import (
	"sort"
	"strings"
	"sync"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// docStyle says which comments count as documentation
type docStyle int

const (
	styleJavadoc       docStyle = iota // /** ... */
	styleJavadocOrLine                 // /** ... */ or ///
	styleRustLine                      // /// or //!, also /** */
	styleGoPackage                     // any comment before the package clause
	stylePythonModule                  // module docstring
)

type language struct {
	name  string
	style docStyle
	load  func() *tree_sitter.Language
}

var languages = map[string]*language{}

func register(lang *language, exts ...string) {
	for _, ext := range exts {
		languages[ext] = lang
	}
}

func init() {
	register(&language{name: "java", style: styleJavadoc, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_java.Language())
	})}, ".java")
	register(&language{name: "javascript", style: styleJavadoc, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	})}, ".js", ".jsx", ".mjs")
	register(&language{name: "typescript", style: styleJavadoc, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	})}, ".ts")
	register(&language{name: "tsx", style: styleJavadoc, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	})}, ".tsx")
	register(&language{name: "php", style: styleJavadoc, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	})}, ".php")
	register(&language{name: "cpp", style: styleJavadocOrLine, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	})}, ".cpp", ".cc", ".cxx", ".hpp", ".hh", ".h")
	register(&language{name: "csharp", style: styleJavadocOrLine, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_csharp.Language())
	})}, ".cs")
	register(&language{name: "rust", style: styleRustLine, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_rust.Language())
	})}, ".rs")
	register(&language{name: "zig", style: styleRustLine, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_zig.Language())
	})}, ".zig")
	register(&language{name: "go", style: styleGoPackage, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_go.Language())
	})}, ".go")
	register(&language{name: "python", style: stylePythonModule, load: lazy(func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(tree_sitter_python.Language())
	})}, ".py")
}

// lazy builds the grammar on first use and shares it afterwards
func lazy(build func() *tree_sitter.Language) func() *tree_sitter.Language {
	var once sync.Once
	var lang *tree_sitter.Language
	return func() *tree_sitter.Language {
		once.Do(func() { lang = build() })
		return lang
	}
}

// Extensions returns the supported file extensions, sorted
func Extensions() []string {
	exts := make([]string, 0, len(languages))
	for ext := range languages {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// sourceGlob matches every supported file below a directory
func sourceGlob() string {
	exts := Extensions()
	for i, ext := range exts {
		exts[i] = strings.TrimPrefix(ext, ".")
	}
	return "**/*.{" + strings.Join(exts, ",") + "}"
}
