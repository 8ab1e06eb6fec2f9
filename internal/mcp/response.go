package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/mapping"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure inside the result with IsError
// set, so the client sees the error and can correct its call
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if kind := errorKind(err); kind != "" {
		errorData["kind"] = kind
	}
	if suggestions := errorSuggestions(operation, err); len(suggestions) > 0 {
		errorData["suggestions"] = suggestions
	}
	if help := operationHelp[operation]; help != "" {
		errorData["help"] = help
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}

func errorKind(err error) string {
	var fileErr *tderrors.FileError
	if errors.As(err, &fileErr) {
		return string(fileErr.Type)
	}
	var parseErr *tderrors.ParseError
	if errors.As(err, &parseErr) {
		return string(parseErr.Type)
	}
	if kind := tderrors.Classify(err); kind != "" {
		return string(kind)
	}
	return ""
}

var (
	errPathRequired  = errors.New("path is required")
	errQueryRequired = errors.New("query is required")
)

func errorSuggestions(operation string, err error) []string {
	switch {
	case errors.Is(err, errPathRequired):
		return []string{`Pass a project-relative path such as {"path": "src/main/java"}`}
	case errors.Is(err, errQueryRequired):
		return []string{`Pass a query such as {"query": "controller"}`}
	case errors.Is(err, errUnknownScope):
		return []string{"Use one of: " + scopeList}
	case errors.Is(err, tderrors.ErrOutsideRoot):
		return []string{"Pass a path inside the project root, relative to it or absolute"}
	case errors.Is(err, mapping.ErrInvalidColor):
		return []string{`Pass a color such as {"color": "#FF8800"} or omit it for the default`}
	case tderrors.Classify(err) == tderrors.ErrorTypeRateLimited:
		return []string{"GitHub API rate limit reached; retry later"}
	case tderrors.Classify(err) == tderrors.ErrorTypeNetwork:
		return []string{"Check network access to GitHub or the configured mirrors"}
	}
	if operation == "import" {
		return []string{"Content must be a mapping document with a \"mappings\" object"}
	}
	return nil
}

var operationHelp = map[string]string{
	"resolve": "Returns the annotation shown for a project path and the layer it came from.",
	"set":     "Stores an annotation for a file, directory, or path pattern.",
	"remove":  "Deletes a stored annotation.",
	"search":  "Finds annotations whose text or path contains the query.",
	"list":    "Lists the stored annotations of one scope.",
	"clear":   "Deletes every stored annotation and the overlay mapping files.",
	"library": "Lists, installs, or toggles mapping libraries.",
	"export":  "Returns the stored annotations as a shareable mapping document.",
	"import":  "Merges a mapping document into the stored annotations.",
	"extract": "Annotates source files with the first line of their doc comment.",
}
