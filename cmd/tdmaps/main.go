package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/tdmaps/internal/config"
	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/project"
	"github.com/standardbeagle/tdmaps/internal/version"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if root != "" {
		// Convert to absolute path to ensure consistent path handling
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		cfg.Project.Root = absRoot
	} else if absRoot, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = absRoot
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = config.DeduplicatePatterns(append(cfg.Exclude, excludeFlags...))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession opens the project for one command. Watchers only run for
// long-lived commands.
func openSession(c *cli.Context, watch bool) (*project.Session, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	if !watch {
		cfg.Live.Watch = false
		cfg.Index.WatchMode = false
	}
	session, err := project.Open(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	for _, skipped := range session.Store().Skipped() {
		fmt.Fprintf(c.App.ErrWriter, "Warning: skipped mapping document: %v\n", skipped)
	}
	return session, nil
}

// withSession runs fn against a session that is closed afterwards
func withSession(c *cli.Context, fn func(*project.Session) error) error {
	session, err := openSession(c, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", cerr)
		}
	}()
	return fn(session)
}

// projectKey turns a command line path into a project-relative key.
// Relative paths are taken from the root; neither form may leave it.
func projectKey(root, arg string) (string, error) {
	key, ok := pathutil.RelativeKey(arg, root)
	if !ok {
		return "", tderrors.NewFileError("resolve", pathutil.Display(arg, root), tderrors.ErrOutsideRoot)
	}
	return key, nil
}

// colorOption returns the validated --color flag
func colorOption(c *cli.Context) (string, error) {
	color := strings.TrimSpace(c.String("color"))
	if err := mapping.CheckColor(color); err != nil {
		return "", err
	}
	return color, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// requireArgs checks the positional argument count against a usage line
func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: tdmaps %s", usage)
	}
	return nil
}

func newApp() *cli.App {
	colorFlag := &cli.StringFlag{
		Name:  "color",
		Usage: "Text color such as #FF0000 (default #BBBBBB)",
	}
	jsonFlag := &cli.BoolFlag{
		Name:    "json",
		Aliases: []string{"j"},
		Usage:   "Output as JSON",
	}

	return &cli.App{
		Name:                   "tdmaps",
		Usage:                  "Annotate project files and directories with short descriptions",
		Version:                version.String(),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default <root>/" + config.ConfigFileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude paths matching glob patterns (e.g., --exclude '**/generated/**')",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug output to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(c.App.ErrWriter)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Aliases:   []string{"get"},
				Usage:     "Show the annotation of files or directories",
				ArgsUsage: "<path>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Treat paths as directories even when they do not exist"},
					jsonFlag,
				},
				Action: resolveCommand,
			},
			{
				Name:      "set",
				Usage:     "Annotate a file",
				ArgsUsage: "<path> <text>",
				Flags:     []cli.Flag{colorFlag},
				Action:    setCommand(scopeFile),
			},
			{
				Name:      "set-package",
				Aliases:   []string{"set-dir"},
				Usage:     "Annotate a directory",
				ArgsUsage: "<path> <text>",
				Flags:     []cli.Flag{colorFlag},
				Action:    setCommand(scopePackage),
			},
			{
				Name:      "set-pattern",
				Usage:     "Annotate every file whose name matches a pattern (regex like '.*Test\\.java' or an exact name)",
				ArgsUsage: "<pattern> <text>",
				Action:    setCommand(scopeFilePattern),
			},
			{
				Name:      "set-package-pattern",
				Usage:     "Annotate every directory matching a pattern (a name like 'controller' or dotted suffix like 'app.dto')",
				ArgsUsage: "<pattern> <text>",
				Action:    setCommand(scopePackagePattern),
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a file annotation",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pattern", Aliases: []string{"p"}, Usage: "Delete a file pattern instead"},
				},
				Action: removeCommand(scopeFile, scopeFilePattern),
			},
			{
				Name:      "remove-package",
				Aliases:   []string{"rm-dir"},
				Usage:     "Delete a directory annotation",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pattern", Aliases: []string{"p"}, Usage: "Delete a directory pattern instead"},
				},
				Action: removeCommand(scopePackage, scopePackagePattern),
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List stored annotations",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scope", Aliases: []string{"s"}, Usage: "file, package, file_pattern, package_pattern or all", Value: "all"},
					jsonFlag,
				},
				Action: listCommand,
			},
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Find annotations by text or path",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-results", Aliases: []string{"m"}, Usage: "Maximum results (0 uses config)"},
					&cli.BoolFlag{Name: "no-fuzzy", Usage: "Only exact substring matches"},
					&cli.BoolFlag{Name: "no-stemming", Usage: "Do not match word forms"},
					jsonFlag,
				},
				Action: searchCommand,
			},
			{
				Name:   "tree",
				Usage:  "Print the project tree with annotations",
				Action: treeCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-depth", Aliases: []string{"d"}, Usage: "Maximum depth (0 for all)"},
					&cli.BoolFlag{Name: "annotated", Aliases: []string{"a"}, Usage: "Only show annotated entries and their parents"},
					&cli.BoolFlag{Name: "source", Usage: "Show the layer each annotation came from"},
					&cli.BoolFlag{Name: "no-annotations", Usage: "Print the bare tree"},
					&cli.BoolFlag{Name: "color", Usage: "Paint annotations with their text color"},
					&cli.BoolFlag{Name: "compact", Usage: "One 'path: annotation' line per annotated entry"},
					jsonFlag,
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every annotation and every mapping document",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deletion"},
				},
				Action: clearCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Convert a legacy " + config.DefaultLegacyFile + " into the mapping directory",
				Action: migrateCommand,
			},
			{
				Name:  "export",
				Usage: "Write the stored annotations as a shareable mapping document",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
				},
				Action: exportCommand,
			},
			{
				Name:      "import",
				Usage:     "Merge a mapping document into the stored annotations",
				ArgsUsage: "<file|->",
				Action:    importCommand,
			},
			{
				Name:      "language",
				Aliases:   []string{"lang"},
				Usage:     "Show or set the project language (en, zh)",
				ArgsUsage: "[code]",
				Action:    languageCommand,
			},
			{
				Name:  "library",
				Usage: "Manage mapping libraries",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List loaded libraries, or community libraries with --remote",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "remote", Usage: "List the community repository"},
							jsonFlag,
						},
						Action: libraryListCommand,
					},
					{
						Name:      "download",
						Aliases:   []string{"install"},
						Usage:     "Install a community library into the mapping directory",
						ArgsUsage: "<repository path>",
						Action:    libraryDownloadCommand,
					},
					{
						Name:      "builtin",
						Usage:     "Show or set whether bundled libraries are used",
						ArgsUsage: "[on|off]",
						Action:    libraryBuiltinCommand,
					},
				},
			},
			{
				Name:      "extract",
				Usage:     "Annotate source files with the first line of their doc comment",
				ArgsUsage: "[path]...",
				Flags:     []cli.Flag{colorFlag},
				Action:    extractCommand,
			},
			{
				Name:   "watch",
				Usage:  "Keep the project open and report mapping and tree changes until interrupted",
				Action: watchCommand,
			},
			{
				Name:  "mcp",
				Usage: "Start MCP server over stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "debug-log", Usage: "Write debug output to a log file in the temp directory"},
				},
				Action: mcpCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		msg := err.Error()
		if !strings.HasPrefix(msg, "usage:") {
			msg = "Error: " + msg
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}
