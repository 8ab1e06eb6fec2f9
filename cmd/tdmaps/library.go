package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tdmaps/internal/project"
	"github.com/standardbeagle/tdmaps/internal/search"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

type searchHit struct {
	Path        string  `json:"path"`
	Annotation  string  `json:"annotation"`
	Source      string  `json:"source"`
	IsDirectory bool    `json:"is_directory,omitempty"`
	Score       float64 `json:"score"`
}

func searchCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "search <query>"); err != nil {
		return err
	}
	query := strings.Join(c.Args().Slice(), " ")

	return withSession(c, func(s *project.Session) error {
		opts := search.OptionsFromConfig(s.Config())
		if n := c.Int("max-results"); n > 0 {
			opts.MaxResults = n
		}
		if c.Bool("no-fuzzy") {
			opts.Fuzzy = false
		}
		if c.Bool("no-stemming") {
			opts.Stemming = false
		}

		results, err := s.SearchWith(c.Context, query, opts)
		if err != nil {
			return err
		}

		if c.Bool("json") {
			hits := make([]searchHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, searchHit{
					Path:        r.Path,
					Annotation:  r.Annotation,
					Source:      r.Source.String(),
					IsDirectory: r.IsDirectory,
					Score:       r.Score,
				})
			}
			return printJSON(c.App.Writer, hits)
		}

		if len(results) == 0 {
			fmt.Fprintf(c.App.Writer, "No annotations match %q\n", query)
			return nil
		}
		for _, r := range results {
			path := r.Path
			if r.IsDirectory {
				path += "/"
			}
			fmt.Fprintf(c.App.Writer, "%s: %s [%s]\n", path, r.Annotation, r.Source)
		}
		fmt.Fprintf(c.App.Writer, "\n%d results\n", len(results))
		return nil
	})
}

func exportCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		content, err := s.Store().ExportToMappingFormat()
		if err != nil {
			return err
		}
		output := c.String("output")
		if output == "" || output == "-" {
			_, err := fmt.Fprintln(c.App.Writer, content)
			return err
		}
		if err := os.WriteFile(output, []byte(content+"\n"), 0644); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		fmt.Fprintf(c.App.Writer, "Exported annotations to %s\n", output)
		return nil
	})
}

func importCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "import <file|->"); err != nil {
		return err
	}
	source := c.Args().First()

	var data []byte
	var err error
	if source == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", source, err)
	}

	return withSession(c, func(s *project.Session) error {
		imported, err := s.Import(string(data))
		if err != nil {
			return err
		}
		if !imported {
			fmt.Fprintln(c.App.Writer, "Nothing to import")
			return nil
		}
		fmt.Fprintf(c.App.Writer, "Imported annotations from %s\n", source)
		return nil
	})
}

type libraryInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Files       int    `json:"files"`
	Packages    int    `json:"packages"`
	Patterns    int    `json:"patterns"`
}

func libraryListCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		if c.Bool("remote") {
			files, err := s.Community().List(c.Context)
			if err != nil && len(files) == 0 {
				return err
			}
			if err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", err)
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, files)
			}
			for _, f := range files {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", f.DisplayName, f.Path)
			}
			return nil
		}

		libs := s.Library().Libraries()
		infos := make([]libraryInfo, 0, len(libs))
		for _, lib := range libs {
			infos = append(infos, libraryInfo{
				Name:        lib.Name,
				Version:     lib.Version,
				Description: lib.Description,
				Files:       lib.Mappings.Files.Len(),
				Packages:    lib.Mappings.Packages.Len(),
				Patterns:    lib.Mappings.FileMatch.Len() + lib.Mappings.PackageMatch.Len(),
			})
		}
		if c.Bool("json") {
			return printJSON(c.App.Writer, infos)
		}
		if !s.Store().BuiltinMappingsEnabled() {
			fmt.Fprintln(c.App.Writer, "Builtin libraries are disabled")
			return nil
		}
		for _, info := range infos {
			fmt.Fprintf(c.App.Writer, "%s %s: %d files, %d packages, %d patterns\n",
				info.Name, info.Version, info.Files, info.Packages, info.Patterns)
		}
		return nil
	})
}

func libraryDownloadCommand(c *cli.Context) error {
	if err := requireArgs(c, 1, "library download <repository path>"); err != nil {
		return err
	}
	return withSession(c, func(s *project.Session) error {
		target, err := s.InstallLibrary(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Installed %s\n", pathutil.Display(target, s.Root()))
		return nil
	})
}

func libraryBuiltinCommand(c *cli.Context) error {
	return withSession(c, func(s *project.Session) error {
		if c.NArg() == 0 {
			state := "off"
			if s.Store().BuiltinMappingsEnabled() {
				state = "on"
			}
			fmt.Fprintf(c.App.Writer, "Builtin libraries: %s\n", state)
			return nil
		}

		var enabled bool
		switch strings.ToLower(c.Args().First()) {
		case "on", "true", "enable", "1":
			enabled = true
		case "off", "false", "disable", "0":
			enabled = false
		default:
			return fmt.Errorf("usage: tdmaps library builtin [on|off]")
		}
		if err := s.SetBuiltinMappingsEnabled(enabled); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Builtin libraries: %s\n", map[bool]string{true: "on", false: "off"}[enabled])
		return nil
	})
}

func extractCommand(c *cli.Context) error {
	color, err := colorOption(c)
	if err != nil {
		return err
	}
	return withSession(c, func(s *project.Session) error {
		paths := make([]string, 0, c.NArg())
		for _, arg := range c.Args().Slice() {
			key, err := projectKey(s.Root(), arg)
			if err != nil {
				return err
			}
			paths = append(paths, pathutil.Abs(s.Root(), key))
		}
		if len(paths) == 0 {
			paths = append(paths, s.Root())
		}

		report, err := s.Extract(c.Context, paths, color)
		if err != nil {
			return err
		}
		for _, e := range report.Errors {
			fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", e)
		}
		fmt.Fprintf(c.App.Writer, "Annotated %d of %d source files\n", report.Succeeded, report.Total)
		return nil
	})
}
