package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tdmaps/internal/display"
	"github.com/standardbeagle/tdmaps/internal/i18n"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/project"
	"github.com/standardbeagle/tdmaps/internal/resolve"
	"github.com/standardbeagle/tdmaps/internal/store"
)

// scope selects one of the four stored annotation maps
type scope int

const (
	scopeFile scope = iota
	scopePackage
	scopeFilePattern
	scopePackagePattern
)

var scopeNames = []string{"file", "package", "file_pattern", "package_pattern"}

func (s scope) String() string { return scopeNames[s] }

func (s scope) isPattern() bool { return s == scopeFilePattern || s == scopePackagePattern }

func parseScopes(name string) ([]scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return []scope{scopeFile, scopePackage, scopeFilePattern, scopePackagePattern}, nil
	case "file", "files":
		return []scope{scopeFile}, nil
	case "package", "packages", "dir", "directory":
		return []scope{scopePackage}, nil
	case "file_pattern", "file-pattern", "file_match":
		return []scope{scopeFilePattern}, nil
	case "package_pattern", "package-pattern", "package_match":
		return []scope{scopePackagePattern}, nil
	}
	return nil, fmt.Errorf("unknown scope %q; use %s or all", name, strings.Join(scopeNames, ", "))
}

// entries returns the stored map of a scope with its colors, when the scope has any
func (s scope) entries(st *store.Store) (entries, colors *mapping.OrderedMap) {
	switch s {
	case scopeFile:
		return st.AllAnnotations(), st.AllFileTextColors()
	case scopePackage:
		return st.AllPackageAnnotations(), st.AllPackageTextColors()
	case scopeFilePattern:
		return st.AllFileMatch(), nil
	default:
		return st.AllPackageMatch(), nil
	}
}

type resolved struct {
	Path       string `json:"path"`
	Found      bool   `json:"found"`
	Annotation string `json:"annotation,omitempty"`
	Color      string `json:"color,omitempty"`
	Source     string `json:"source,omitempty"`
	Key        string `json:"key,omitempty"`
}

func resolveCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "resolve <path>..."); err != nil {
		return err
	}
	return withSession(c, func(s *project.Session) error {
		var out []resolved
		for _, arg := range c.Args().Slice() {
			key, err := projectKey(s.Root(), arg)
			if err != nil {
				return err
			}
			kind := resolve.FileEntry
			if c.Bool("dir") {
				kind = resolve.DirectoryEntry
			} else if info, err := os.Stat(filepath.Join(s.Root(), filepath.FromSlash(key))); err == nil && info.IsDir() {
				kind = resolve.DirectoryEntry
			}

			r := resolved{Path: key}
			if res, ok := s.Resolve(resolve.Entry{Path: key, Kind: kind}); ok {
				r.Found = true
				r.Annotation = res.Text
				r.Color = res.DisplayColor()
				r.Source = res.Source.String()
				r.Key = res.Key
			}
			out = append(out, r)
		}

		if c.Bool("json") {
			return printJSON(c.App.Writer, out)
		}
		for _, r := range out {
			if !r.Found {
				fmt.Fprintf(c.App.Writer, "%s: -\n", r.Path)
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s: %s [%s %s]\n", r.Path, r.Annotation, r.Color, r.Source)
		}
		return nil
	})
}

func setCommand(sc scope) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 2, c.Command.Name+" "+c.Command.ArgsUsage); err != nil {
			return err
		}
		color, err := colorOption(c)
		if err != nil {
			return err
		}
		return withSession(c, func(s *project.Session) error {
			target := c.Args().First()
			if !sc.isPattern() {
				key, err := projectKey(s.Root(), target)
				if err != nil {
					return err
				}
				target = key
			}
			text := strings.Join(c.Args().Tail(), " ")

			st := s.Store()
			var err error
			switch sc {
			case scopeFile:
				err = st.SetAnnotationAndRefresh(target, text, color)
			case scopePackage:
				err = st.SetPackageAnnotationAndRefresh(target, text, color)
			case scopeFilePattern:
				err = st.SetFileMatchAnnotation(target, text)
			case scopePackagePattern:
				err = st.SetPackageMatchAnnotation(target, text)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Set %s annotation for %s\n", sc, target)
			return nil
		})
	}
}

func removeCommand(exact, pattern scope) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 1, c.Command.Name+" <path>"); err != nil {
			return err
		}
		sc := exact
		if c.Bool("pattern") {
			sc = pattern
		}
		return withSession(c, func(s *project.Session) error {
			target := c.Args().First()
			if !sc.isPattern() {
				key, err := projectKey(s.Root(), target)
				if err != nil {
					return err
				}
				target = key
			}

			st := s.Store()
			entries, _ := sc.entries(st)
			if !entries.Has(target) {
				fmt.Fprintf(c.App.Writer, "No %s annotation for %s\n", sc, target)
				return nil
			}

			var err error
			switch sc {
			case scopeFile:
				err = st.RemoveAnnotation(target)
			case scopePackage:
				err = st.RemovePackageAnnotation(target)
			case scopeFilePattern:
				err = st.RemoveFileMatchAnnotation(target)
			case scopePackagePattern:
				err = st.RemovePackageMatchAnnotation(target)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Removed %s annotation for %s\n", sc, target)
			return nil
		})
	}
}

type listed struct {
	Scope string `json:"scope"`
	Key   string `json:"key"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

func listCommand(c *cli.Context) error {
	scopes, err := parseScopes(c.String("scope"))
	if err != nil {
		return err
	}
	return withSession(c, func(s *project.Session) error {
		out := []listed{}
		for _, sc := range scopes {
			entries, colors := sc.entries(s.Store())
			entries.Range(func(key, text string) bool {
				l := listed{Scope: sc.String(), Key: key, Text: text}
				if colors != nil {
					l.Color, _ = colors.Get(key)
				}
				out = append(out, l)
				return true
			})
		}

		if c.Bool("json") {
			return printJSON(c.App.Writer, out)
		}
		if len(out) == 0 {
			fmt.Fprintln(c.App.Writer, "No annotations")
			return nil
		}
		current := ""
		for _, l := range out {
			if l.Scope != current {
				current = l.Scope
				fmt.Fprintf(c.App.Writer, "[%s]\n", current)
			}
			if l.Color != "" {
				fmt.Fprintf(c.App.Writer, "  %s: %s (%s)\n", l.Key, l.Text, l.Color)
			} else {
				fmt.Fprintf(c.App.Writer, "  %s: %s\n", l.Key, l.Text)
			}
		}
		return nil
	})
}

func clearCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("clear deletes every annotation and mapping document; rerun with --yes")
	}
	return withSession(c, func(s *project.Session) error {
		if err := s.Store().ClearAllAnnotations(); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Cleared all annotations")
		return nil
	})
}

// migrateCommand reports the legacy conversion the store performs while opening
func migrateCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		legacy := filepath.Join(s.Root(), s.Config().Mappings.LegacyFile)
		switch {
		case s.Store().Migrated():
			fmt.Fprintf(c.App.Writer, "Migrated %s to %s\n", legacy, s.Store().LocalPath())
		case fileExists(legacy):
			fmt.Fprintf(c.App.Writer, "%s already exists; %s was not migrated\n", s.Store().MappingDir(), legacy)
		default:
			fmt.Fprintf(c.App.Writer, "No %s to migrate\n", legacy)
		}
		return nil
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func languageCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		st := s.Store()
		if c.NArg() == 0 {
			lang := st.Language()
			fmt.Fprintf(c.App.Writer, "%s (%s)\n", lang.Code(), lang.DisplayName())
			return nil
		}

		code := strings.ToLower(c.Args().First())
		lang := i18n.FromCode(code)
		if lang.Code() != code {
			return fmt.Errorf("unsupported language %q; use en or zh", code)
		}
		if err := st.SetLanguage(lang); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, i18n.Text(lang, "语言已设置为中文", "Language set to English"))
		return nil
	})
}

func treeCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		ix, err := s.PathIndex(c.Context)
		if err != nil {
			return err
		}
		if c.Bool("no-annotations") {
			s.Store().SetProjectTreeAnnotationsEnabled(false)
		}

		format := "text"
		switch {
		case c.Bool("json"):
			format = "json"
		case c.Bool("compact"):
			format = "compact"
		}
		formatter := display.NewTreeFormatter(display.FormatterOptions{
			Format:        format,
			ShowSource:    c.Bool("source"),
			AnnotatedOnly: c.Bool("annotated"),
			Color:         c.Bool("color"),
			MaxDepth:      c.Int("max-depth"),
		})

		tree := display.BuildTree(filepath.Base(s.Root()), ix.Entries(), s.Resolve)
		fmt.Fprint(c.App.Writer, formatter.Format(tree))
		return nil
	})
}
