package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/resolve"
	"github.com/standardbeagle/tdmaps/internal/search"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// Scope selects one of the four stored annotation maps
type Scope string

const (
	ScopeFile           Scope = "file"
	ScopePackage        Scope = "package"
	ScopeFilePattern    Scope = "file_pattern"
	ScopePackagePattern Scope = "package_pattern"
)

const scopeList = "file, package, file_pattern, package_pattern"

var errUnknownScope = errors.New("unknown scope")

func parseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeFile:
		return ScopeFile, nil
	case ScopePackage, "directory", "dir":
		return ScopePackage, nil
	case ScopeFilePattern, "file_match":
		return ScopeFilePattern, nil
	case ScopePackagePattern, "package_match":
		return ScopePackagePattern, nil
	}
	return "", fmt.Errorf("%w %q", errUnknownScope, s)
}

func parseKind(s string) resolve.EntryKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "directory", "dir", "package", "folder":
		return resolve.DirectoryEntry
	}
	return resolve.FileEntry
}

// projectKey converts a tool path argument, absolute or relative to the
// root, into a key inside the project
func (s *Server) projectKey(op, p string) (string, error) {
	key, ok := pathutil.RelativeKey(strings.TrimSpace(p), s.session.Root())
	if !ok {
		return "", tderrors.NewFileError(op, p, tderrors.ErrOutsideRoot)
	}
	return key, nil
}

func decode(req *mcp.CallToolRequest, v interface{}) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// ResolveParams are the arguments of the resolve tool
type ResolveParams struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

// ResolveResponse is the result of the resolve tool
type ResolveResponse struct {
	Path       string `json:"path"`
	Found      bool   `json:"found"`
	Annotation string `json:"annotation,omitempty"`
	Color      string `json:"color,omitempty"`
	Source     string `json:"source,omitempty"`
	Key        string `json:"key,omitempty"`
}

func (s *Server) handleResolve(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ResolveParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errPathRequired
	}
	key, err := s.projectKey("resolve", p.Path)
	if err != nil {
		return nil, err
	}
	resp := ResolveResponse{Path: key}
	if r, ok := s.session.Resolve(resolve.Entry{Path: key, Kind: parseKind(p.Kind)}); ok {
		resp.Found = true
		resp.Annotation = r.Text
		resp.Color = r.DisplayColor()
		resp.Source = r.Source.String()
		resp.Key = r.Key
	}
	return createJSONResponse(resp)
}

// SetParams are the arguments of the set tool
type SetParams struct {
	Path  string `json:"path"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
	Scope string `json:"scope,omitempty"`
}

func (s *Server) handleSet(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SetParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errPathRequired
	}
	scope, err := parseScope(p.Scope)
	if err != nil {
		return nil, err
	}
	if err := mapping.CheckColor(p.Color); err != nil {
		return nil, err
	}
	target, err := s.target("set", scope, p.Path)
	if err != nil {
		return nil, err
	}

	st := s.session.Store()
	color := strings.TrimSpace(p.Color)
	switch scope {
	case ScopeFile:
		err = st.SetAnnotationAndRefresh(target, p.Text, color)
	case ScopePackage:
		err = st.SetPackageAnnotationAndRefresh(target, p.Text, color)
	case ScopeFilePattern:
		err = st.SetFileMatchAnnotation(target, p.Text)
	case ScopePackagePattern:
		err = st.SetPackageMatchAnnotation(target, p.Text)
	}
	if err != nil {
		return nil, err
	}
	s.diagnosticLogger.Printf("set %s %q", scope, target)
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"scope":   scope,
		"path":    target,
	})
}

// target returns the stored key for path: patterns are kept as written and
// exact paths must lie inside the project
func (s *Server) target(op string, scope Scope, path string) (string, error) {
	if scope == ScopeFilePattern || scope == ScopePackagePattern {
		return path, nil
	}
	return s.projectKey(op, path)
}

// RemoveParams are the arguments of the remove tool
type RemoveParams struct {
	Path  string `json:"path"`
	Scope string `json:"scope,omitempty"`
}

func (s *Server) handleRemove(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p RemoveParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errPathRequired
	}
	scope, err := parseScope(p.Scope)
	if err != nil {
		return nil, err
	}
	target, err := s.target("remove", scope, p.Path)
	if err != nil {
		return nil, err
	}

	st := s.session.Store()
	existed := false
	switch scope {
	case ScopeFile:
		existed = st.HasAnnotation(target)
		err = st.RemoveAnnotation(target)
	case ScopePackage:
		existed = st.HasPackageAnnotation(target)
		err = st.RemovePackageAnnotation(target)
	case ScopeFilePattern:
		existed = st.AllFileMatch().Has(target)
		err = st.RemoveFileMatchAnnotation(target)
	case ScopePackagePattern:
		existed = st.AllPackageMatch().Has(target)
		err = st.RemovePackageMatchAnnotation(target)
	}
	if err != nil {
		return nil, err
	}
	s.session.RefreshTree()
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"removed": existed,
		"scope":   scope,
		"path":    target,
	})
}

// SearchParams are the arguments of the search tool
type SearchParams struct {
	Query    string `json:"query"`
	Max      int    `json:"max,omitempty"`
	Fuzzy    *bool  `json:"fuzzy,omitempty"`
	Stemming *bool  `json:"stemming,omitempty"`
}

// SearchHit is one search result
type SearchHit struct {
	Path        string  `json:"path"`
	Annotation  string  `json:"annotation"`
	Source      string  `json:"source"`
	IsDirectory bool    `json:"is_directory,omitempty"`
	Score       float64 `json:"score"`
}

// SearchResponse is the result of the search tool
type SearchResponse struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Results []SearchHit `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p SearchParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, errQueryRequired
	}

	opts := search.OptionsFromConfig(s.session.Config())
	if p.Max > 0 {
		opts.MaxResults = p.Max
	}
	if p.Fuzzy != nil {
		opts.Fuzzy = *p.Fuzzy
	}
	if p.Stemming != nil {
		opts.Stemming = *p.Stemming
	}

	results, err := s.session.SearchWith(ctx, p.Query, opts)
	if err != nil {
		return nil, err
	}
	resp := SearchResponse{Query: p.Query, Total: len(results), Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, SearchHit{
			Path:        r.Path,
			Annotation:  r.Annotation,
			Source:      r.Source.String(),
			IsDirectory: r.IsDirectory,
			Score:       r.Score,
		})
	}
	return createJSONResponse(resp)
}

// ListParams are the arguments of the list tool
type ListParams struct {
	Scope string `json:"scope,omitempty"`
}

// ListEntry is one stored annotation
type ListEntry struct {
	Key   string `json:"key"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ListParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	scope, err := parseScope(p.Scope)
	if err != nil {
		return nil, err
	}

	st := s.session.Store()
	var entries, colors *mapping.OrderedMap
	switch scope {
	case ScopeFile:
		entries, colors = st.AllAnnotations(), st.AllFileTextColors()
	case ScopePackage:
		entries, colors = st.AllPackageAnnotations(), st.AllPackageTextColors()
	case ScopeFilePattern:
		entries = st.AllFileMatch()
	case ScopePackagePattern:
		entries = st.AllPackageMatch()
	}

	list := make([]ListEntry, 0, entries.Len())
	entries.Range(func(key, text string) bool {
		e := ListEntry{Key: key, Text: text}
		if colors != nil {
			e.Color, _ = colors.Get(key)
		}
		list = append(list, e)
		return true
	})
	return createJSONResponse(map[string]interface{}{
		"scope":   scope,
		"total":   len(list),
		"entries": list,
	})
}

// ClearParams are the arguments of the clear tool
type ClearParams struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) handleClear(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ClearParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if !p.Confirm {
		return nil, errors.New("clear deletes every annotation; pass confirm=true")
	}
	if err := s.session.Store().ClearAllAnnotations(); err != nil {
		return nil, err
	}
	s.diagnosticLogger.Printf("cleared all annotations")
	return createJSONResponse(map[string]interface{}{"success": true})
}

// LibraryParams are the arguments of the library tool
type LibraryParams struct {
	Action  string `json:"action"`
	Path    string `json:"path,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// LibraryInfo describes a loaded mapping library
type LibraryInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Files       int    `json:"files"`
	Packages    int    `json:"packages"`
	Patterns    int    `json:"patterns"`
}

func (s *Server) handleLibrary(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p LibraryParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}

	switch strings.ToLower(p.Action) {
	case "", "list":
		libs := s.session.Library().Libraries()
		infos := make([]LibraryInfo, 0, len(libs))
		for _, lib := range libs {
			infos = append(infos, LibraryInfo{
				Name:        lib.Name,
				Version:     lib.Version,
				Description: lib.Description,
				Files:       lib.Mappings.Files.Len(),
				Packages:    lib.Mappings.Packages.Len(),
				Patterns:    lib.Mappings.FileMatch.Len() + lib.Mappings.PackageMatch.Len(),
			})
		}
		return createJSONResponse(map[string]interface{}{
			"builtin_enabled": s.session.Store().BuiltinMappingsEnabled(),
			"libraries":       infos,
		})

	case "remote":
		files, err := s.session.Community().List(ctx)
		if err != nil && len(files) == 0 {
			return nil, err
		}
		resp := map[string]interface{}{"libraries": files}
		if err != nil {
			resp["warnings"] = []string{err.Error()}
		}
		return createJSONResponse(resp)

	case "install":
		if strings.TrimSpace(p.Path) == "" {
			return nil, errPathRequired
		}
		target, err := s.session.InstallLibrary(ctx, p.Path)
		if err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]interface{}{"success": true, "written": target})

	case "builtin":
		if p.Enabled == nil {
			return nil, errors.New("enabled is required for the builtin action")
		}
		if err := s.session.SetBuiltinMappingsEnabled(*p.Enabled); err != nil {
			return nil, err
		}
		return createJSONResponse(map[string]interface{}{"success": true, "builtin_enabled": *p.Enabled})
	}
	return nil, fmt.Errorf("unknown library action %q", p.Action)
}

func (s *Server) handleExport(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := s.session.Store().ExportToMappingFormat()
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: content}}}, nil
}

// ImportParams are the arguments of the import tool
type ImportParams struct {
	Content string `json:"content"`
}

func (s *Server) handleImport(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ImportParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	imported, err := s.session.Import(p.Content)
	if err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]interface{}{"success": true, "imported": imported})
}

// ExtractParams are the arguments of the extract tool
type ExtractParams struct {
	Paths []string `json:"paths,omitempty"`
	Color string   `json:"color,omitempty"`
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p ExtractParams
	if err := decode(req, &p); err != nil {
		return nil, err
	}
	if err := mapping.CheckColor(p.Color); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(p.Paths))
	for _, rel := range p.Paths {
		key, err := s.projectKey("extract", rel)
		if err != nil {
			return nil, err
		}
		paths = append(paths, pathutil.Abs(s.session.Root(), key))
	}
	if len(paths) == 0 {
		paths = append(paths, s.session.Root())
	}

	report, err := s.session.Extract(ctx, paths, strings.TrimSpace(p.Color))
	if err != nil {
		return nil, err
	}
	resp := map[string]interface{}{
		"success":   true,
		"succeeded": report.Succeeded,
		"total":     report.Total,
	}
	if len(report.Errors) > 0 {
		msgs := make([]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			msgs = append(msgs, e.Error())
		}
		resp["errors"] = msgs
	}
	return createJSONResponse(resp)
}
