// Package mcp exposes the project's annotations to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	tddebug "github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/project"
	"github.com/standardbeagle/tdmaps/internal/version"
)

// ToolHandler is the signature of every registered tool
type ToolHandler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Server serves annotation tools for one project session
type Server struct {
	session          *project.Session
	server           *mcp.Server
	diagnosticLogger *DiagnosticLogger
	handlers         map[string]ToolHandler
}

// NewServer creates a server logging to a diagnostic file so stdio stays clean
func NewServer(session *project.Session) (*Server, error) {
	return NewServerWithLogger(session, NewDiagnosticLogger(true))
}

// NewServerWithLogger creates a server with an explicit diagnostic logger
func NewServerWithLogger(session *project.Session, logger *DiagnosticLogger) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("mcp server requires a project session")
	}
	if logger == nil {
		logger = NoOpLogger
	}
	s := &Server{
		session:          session,
		diagnosticLogger: logger,
		handlers:         make(map[string]ToolHandler),
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "tdmaps-mcp-server",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	logger.Printf("MCP server initialized for %s", session.Root())
	return s, nil
}

// addTool registers a tool with panic recovery and keeps the handler for Handler
func (s *Server) addTool(tool *mcp.Tool, handler ToolHandler) {
	name := tool.Name
	wrapped := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.recoverFromPanic(name, func() (*mcp.CallToolResult, error) {
			return handler(ctx, req)
		})
	}
	s.handlers[name] = wrapped
	s.server.AddTool(tool, wrapped)
}

func stringProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func (s *Server) registerTools() {
	s.addTool(&mcp.Tool{
		Name:        "resolve",
		Description: "Show the annotation the project tree displays for a path, with its color and source layer.",
		InputSchema: objectSchema([]string{"path"}, map[string]*jsonschema.Schema{
			"path": stringProp("Project-relative path, '/' separated"),
			"kind": stringProp("'file' (default) or 'directory'"),
		}),
	}, s.handleResolve)

	s.addTool(&mcp.Tool{
		Name:        "set",
		Description: "Annotate a file, directory or path pattern. Patterns are regular expressions, or dot-separated package paths with '*' wildcards.",
		InputSchema: objectSchema([]string{"path", "text"}, map[string]*jsonschema.Schema{
			"path":  stringProp("Project-relative path or pattern"),
			"text":  stringProp("Annotation text"),
			"color": stringProp("Text color such as #FF0000; empty uses the default"),
			"scope": stringProp("One of " + scopeList + " (default file)"),
		}),
	}, s.handleSet)

	s.addTool(&mcp.Tool{
		Name:        "remove",
		Description: "Delete a stored annotation.",
		InputSchema: objectSchema([]string{"path"}, map[string]*jsonschema.Schema{
			"path":  stringProp("Project-relative path or pattern"),
			"scope": stringProp("One of " + scopeList + " (default file)"),
		}),
	}, s.handleRemove)

	s.addTool(&mcp.Tool{
		Name:        "search",
		Description: "Find annotations whose text or path matches a query, across stored annotations and mapping libraries.",
		InputSchema: objectSchema([]string{"query"}, map[string]*jsonschema.Schema{
			"query":    stringProp("Case-insensitive text to find"),
			"max":      {Type: "integer", Description: "Maximum results"},
			"fuzzy":    {Type: "boolean", Description: "Tolerate typos"},
			"stemming": {Type: "boolean", Description: "Match word forms such as 'service' for 'services'"},
		}),
	}, s.handleSearch)

	s.addTool(&mcp.Tool{
		Name:        "list",
		Description: "List stored annotations of one scope.",
		InputSchema: objectSchema(nil, map[string]*jsonschema.Schema{
			"scope": stringProp("One of " + scopeList + " (default file)"),
		}),
	}, s.handleList)

	s.addTool(&mcp.Tool{
		Name:        "clear",
		Description: "Delete every stored annotation and every overlay mapping file. Requires confirm=true.",
		InputSchema: objectSchema([]string{"confirm"}, map[string]*jsonschema.Schema{
			"confirm": {Type: "boolean", Description: "Must be true"},
		}),
	}, s.handleClear)

	s.addTool(&mcp.Tool{
		Name:        "library",
		Description: "Manage mapping libraries: 'list' loaded libraries, 'remote' community libraries, 'install' one by path, or 'builtin' to toggle the bundled ones.",
		InputSchema: objectSchema([]string{"action"}, map[string]*jsonschema.Schema{
			"action":  stringProp("list, remote, install or builtin"),
			"path":    stringProp("Repository path of the library to install"),
			"enabled": {Type: "boolean", Description: "For builtin: whether bundled libraries are used"},
		}),
	}, s.handleLibrary)

	s.addTool(&mcp.Tool{
		Name:        "export",
		Description: "Return the stored annotations as a mapping document that can be shared or imported elsewhere.",
		InputSchema: objectSchema(nil, map[string]*jsonschema.Schema{}),
	}, s.handleExport)

	s.addTool(&mcp.Tool{
		Name:        "import",
		Description: "Merge a mapping document into the stored annotations; existing keys are overwritten.",
		InputSchema: objectSchema([]string{"content"}, map[string]*jsonschema.Schema{
			"content": stringProp("Mapping document JSON"),
		}),
	}, s.handleImport)

	s.addTool(&mcp.Tool{
		Name:        "extract",
		Description: "Annotate source files with the first line of their leading doc comment.",
		InputSchema: objectSchema(nil, map[string]*jsonschema.Schema{
			"paths": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Project-relative files or directories (default: the whole project)"},
			"color": stringProp("Text color for the new annotations"),
		}),
	}, s.handleExtract)
}

// recoverFromPanic turns handler panics and errors into error results
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.diagnosticLogger.Printf("PANIC RECOVERED in %s: %v", operation, r)
			s.diagnosticLogger.Printf("Stack trace: %s", debug.Stack())
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.diagnosticLogger.Printf("Error in %s: %v", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Handler returns the registered handler of a tool, or nil
func (s *Server) Handler(name string) ToolHandler {
	return s.handlers[name]
}

// Tools returns the registered tool names
func (s *Server) Tools() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

// Start serves on stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	tddebug.SetMCPMode(true)
	s.diagnosticLogger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown closes the diagnostic log. The session is owned by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.diagnosticLogger.Printf("MCP server shutdown complete")
	return s.diagnosticLogger.Close()
}
