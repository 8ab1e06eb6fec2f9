package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/tdmaps/internal/project"
	"github.com/standardbeagle/tdmaps/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func newTestServer(t *testing.T, b *testhelpers.TestConfigBuilder) *Server {
	t.Helper()
	session, err := project.Open(context.Background(), b.Build())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	s, err := NewServerWithLogger(session, NoOpLogger)
	require.NoError(t, err)
	return s
}

// call invokes a tool and decodes its JSON text content into a map
func call(t *testing.T, s *Server, tool string, args interface{}) (map[string]interface{}, *mcp.CallToolResult) {
	t.Helper()
	paramsBytes, err := json.Marshal(args)
	require.NoError(t, err)

	handler := s.Handler(tool)
	require.NotNil(t, handler, "tool %s", tool)
	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Arguments: paramsBytes,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	text := result.Content[0].(*mcp.TextContent).Text
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		data = map[string]interface{}{"text": text}
	}
	return data, result
}

func TestRegisteredTools(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())

	tools := s.Tools()
	sort.Strings(tools)
	assert.Equal(t, []string{"clear", "export", "extract", "import", "library", "list", "remove", "resolve", "search", "set"}, tools)
}

// TestSetResolveRemove tests the annotation round trip through the tools
func TestSetResolveRemove(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())

	tests := []struct {
		name   string
		set    SetParams
		path   string
		kind   string
		source string
	}{
		{name: "file", set: SetParams{Path: "src/App.java", Text: "Entry point", Color: "#FF0000"}, path: "src/App.java", source: "user-file"},
		{name: "package", set: SetParams{Path: "src/zorp", Text: "Zorp API", Scope: "package"}, path: "src/zorp", kind: "directory", source: "user-package"},
		{name: "file pattern", set: SetParams{Path: `.*Widget\.java`, Text: "UI widget", Scope: "file_pattern"}, path: "src/FooWidget.java", source: "user-file-match"},
		{name: "package pattern", set: SetParams{Path: "ui.widgets", Text: "Widget set", Scope: "package_pattern"}, path: "src/ui/widgets", kind: "directory", source: "user-package-match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, result := call(t, s, "set", tt.set)
			require.False(t, result.IsError, "%v", data)

			data, _ = call(t, s, "resolve", ResolveParams{Path: tt.path, Kind: tt.kind})
			assert.Equal(t, true, data["found"])
			assert.Equal(t, tt.set.Text, data["annotation"])
			assert.Equal(t, tt.source, data["source"])

			data, result = call(t, s, "remove", RemoveParams{Path: tt.set.Path, Scope: tt.set.Scope})
			require.False(t, result.IsError)
			assert.Equal(t, true, data["removed"])

			data, _ = call(t, s, "resolve", ResolveParams{Path: tt.path, Kind: tt.kind})
			assert.Equal(t, false, data["found"])
		})
	}
}

func TestResolveColor(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())

	call(t, s, "set", SetParams{Path: "a.txt", Text: "A", Color: "#00FF00"})
	data, _ := call(t, s, "resolve", ResolveParams{Path: "a.txt"})
	assert.Equal(t, "#00FF00", data["color"])

	data, _ = call(t, s, "resolve", ResolveParams{Path: "pom.xml"})
	assert.Equal(t, "#BBBBBB", data["color"])
	assert.Equal(t, "builtin-file", data["source"])
}

func TestToolErrors(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())

	tests := []struct {
		name string
		tool string
		args interface{}
		want string
	}{
		{name: "resolve needs path", tool: "resolve", args: map[string]string{}, want: "path is required"},
		{name: "set needs path", tool: "set", args: SetParams{Text: "x"}, want: "path is required"},
		{name: "unknown scope", tool: "set", args: SetParams{Path: "a", Text: "x", Scope: "galaxy"}, want: "unknown scope"},
		{name: "search needs query", tool: "search", args: SearchParams{Query: " "}, want: "query is required"},
		{name: "clear needs confirm", tool: "clear", args: ClearParams{}, want: "confirm=true"},
		{name: "unknown library action", tool: "library", args: LibraryParams{Action: "explode"}, want: "unknown library action"},
		{name: "builtin needs enabled", tool: "library", args: LibraryParams{Action: "builtin"}, want: "enabled is required"},
		{name: "bad import", tool: "import", args: ImportParams{Content: "not json"}, want: "import mapping document"},
		{name: "bad arguments", tool: "resolve", args: []int{1}, want: "invalid parameters"},
		{name: "resolve outside root", tool: "resolve", args: ResolveParams{Path: "../outside/secret.txt"}, want: "outside the project root"},
		{name: "set outside root", tool: "set", args: SetParams{Path: "a/../../b.txt", Text: "x"}, want: "outside the project root"},
		{name: "remove outside root", tool: "remove", args: RemoveParams{Path: "../b.txt"}, want: "outside the project root"},
		{name: "extract outside root", tool: "extract", args: ExtractParams{Paths: []string{"../.."}}, want: "outside the project root"},
		{name: "named color", tool: "set", args: SetParams{Path: "a.txt", Text: "x", Color: "red"}, want: "#RRGGBB"},
		{name: "short color", tool: "extract", args: ExtractParams{Color: "#ZZZ"}, want: "#RRGGBB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, result := call(t, s, tt.tool, tt.args)
			assert.True(t, result.IsError)
			assert.Equal(t, false, data["success"])
			assert.Contains(t, data["error"], tt.want)
			assert.Equal(t, tt.tool, data["operation"])
		})
	}
}

// TestPathArguments tests that absolute paths become keys and escaping paths store nothing
func TestPathArguments(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())

	data, result := call(t, s, "set", SetParams{Path: p.Path("docs/guide.md"), Text: "Guide"})
	require.False(t, result.IsError, "%v", data)
	assert.Equal(t, "docs/guide.md", data["path"])

	data, _ = call(t, s, "resolve", ResolveParams{Path: "docs/guide.md"})
	assert.Equal(t, "Guide", data["annotation"])

	data, result = call(t, s, "set", SetParams{Path: "../outside/secret.txt", Text: "x"})
	require.True(t, result.IsError)
	assert.Equal(t, "outside_root", data["kind"])
	local, err := os.ReadFile(p.LocalPath())
	require.NoError(t, err)
	assert.NotContains(t, string(local), "secret.txt")
}

func TestSearchTool(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddFile("src/OrderController.java", "")
	s := newTestServer(t, p.Config())
	call(t, s, "set", SetParams{Path: `.*Controller\.java`, Text: "HTTP endpoint", Scope: "file_pattern"})

	exact := false
	data, result := call(t, s, "search", SearchParams{Query: "endpoint", Fuzzy: &exact, Stemming: &exact})
	require.False(t, result.IsError)
	assert.Equal(t, float64(1), data["total"])
	hits := data["results"].([]interface{})
	hit := hits[0].(map[string]interface{})
	assert.Equal(t, "src/OrderController.java", hit["path"])
	assert.Equal(t, "user-file-match", hit["source"])
}

func TestListAndClear(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())
	call(t, s, "set", SetParams{Path: "b.txt", Text: "B"})
	call(t, s, "set", SetParams{Path: "a.txt", Text: "A", Color: "#123456"})

	data, _ := call(t, s, "list", ListParams{})
	assert.Equal(t, float64(2), data["total"])
	entries := data["entries"].([]interface{})
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "b.txt", first["key"], "insertion order is kept")
	second := entries[1].(map[string]interface{})
	assert.Equal(t, "#123456", second["color"])

	data, result := call(t, s, "clear", ClearParams{Confirm: true})
	require.False(t, result.IsError, "%v", data)
	data, _ = call(t, s, "list", ListParams{})
	assert.Equal(t, float64(0), data["total"])
}

func TestExportImport(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config())
	call(t, s, "set", SetParams{Path: "pom.xml", Text: "Root build"})

	data, _ := call(t, s, "export", struct{}{})
	exported, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(exported), "Root build")

	other := testhelpers.NewTestProject(t)
	target := newTestServer(t, other.Config())
	data, result := call(t, target, "import", ImportParams{Content: string(exported)})
	require.False(t, result.IsError, "%v", data)
	assert.Equal(t, true, data["imported"])

	data, _ = call(t, target, "resolve", ResolveParams{Path: "pom.xml"})
	assert.Equal(t, "Root build", data["annotation"])
}

func TestLibraryTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/repos/"):
			_, _ = w.Write([]byte(`[{"name":"team.json","path":"team.json","type":"file"}]`))
		default:
			_, _ = w.Write([]byte(`{"name":"Team","mappings":{"files":{"Makefile":"Team build"}}}`))
		}
	}))
	defer server.Close()

	p := testhelpers.NewTestProject(t)
	s := newTestServer(t, p.Config().WithCommunity(server.URL, server.URL+"/raw"))

	data, _ := call(t, s, "library", LibraryParams{Action: "list"})
	assert.Equal(t, true, data["builtin_enabled"])
	assert.Len(t, data["libraries"], 3)

	data, _ = call(t, s, "library", LibraryParams{Action: "remote"})
	assert.Len(t, data["libraries"], 1)

	data, result := call(t, s, "library", LibraryParams{Action: "install", Path: "team.json"})
	require.False(t, result.IsError, "%v", data)
	data, _ = call(t, s, "resolve", ResolveParams{Path: "Makefile"})
	assert.Equal(t, "Team build", data["annotation"])

	disabled := false
	call(t, s, "library", LibraryParams{Action: "builtin", Enabled: &disabled})
	data, _ = call(t, s, "library", LibraryParams{Action: "list"})
	assert.Equal(t, false, data["builtin_enabled"])
	assert.Empty(t, data["libraries"])
}

func TestExtractTool(t *testing.T) {
	p := testhelpers.NewTestProject(t).
		AddFile("src/Login.java", "/**\n * Login page\n */\nclass Login {}\n").
		AddFile("docs/readme.txt", "plain")
	s := newTestServer(t, p.Config())

	data, result := call(t, s, "extract", ExtractParams{Paths: []string{"src"}, Color: "#FF0000"})
	require.False(t, result.IsError, "%v", data)
	assert.Equal(t, float64(1), data["succeeded"])
	assert.Equal(t, float64(1), data["total"])

	data, _ = call(t, s, "resolve", ResolveParams{Path: "src/Login.java"})
	assert.Equal(t, "Login page", data["annotation"])
}

func TestPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	p := testhelpers.NewTestProject(t)
	session, err := project.Open(context.Background(), p.Config().Build())
	require.NoError(t, err)
	defer session.Close()

	s, err := NewServerWithLogger(session, NewWriterLogger(&buf))
	require.NoError(t, err)
	result, err := s.recoverFromPanic("boom", func() (*mcp.CallToolResult, error) {
		panic("kaboom")
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, buf.String(), "PANIC RECOVERED in boom")
}
