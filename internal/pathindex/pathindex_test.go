package pathindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/tdmaps/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

// TestFilter tests exclusion globs, directory shortcuts and gitignore
func TestFilter(t *testing.T) {
	gi := config.NewGitignoreParser()
	require.NoError(t, gi.Parse(strings.NewReader("*.log\nsecret/\n")))
	f := NewFilter(nil, []string{"**/node_modules/**", "**/target/**", "**/*.class"}, gi)

	tests := []struct {
		name  string
		key   string
		isDir bool
		keep  bool
	}{
		{name: "plain file", key: "src/App.java", keep: true},
		{name: "excluded pattern file", key: "src/App.class", keep: false},
		{name: "excluded directory", key: "web/node_modules", isDir: true, keep: false},
		{name: "top level target", key: "target", isDir: true, keep: false},
		{name: "gitignored file", key: "logs/app.log", keep: false},
		{name: "gitignored dir", key: "secret", isDir: true, keep: false},
		{name: "kept dir", key: "src/main", isDir: true, keep: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.isDir {
				assert.Equal(t, !tt.keep, f.SkipDir(tt.key))
			} else {
				assert.Equal(t, tt.keep, f.KeepFile(tt.key))
			}
		})
	}

	inc := NewFilter([]string{"**/*.java"}, nil, nil)
	assert.True(t, inc.KeepFile("a/B.java"))
	assert.False(t, inc.KeepFile("README.md"))
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"pom.xml",
		"src/main/java/App.java",
		"target/classes/App.class",
		"web/node_modules/lib/index.js",
	)
	ix := New(Options{Root: root, Filter: NewFilter(nil, []string{"**/target/**", "**/node_modules/**"}, nil)})
	require.NoError(t, ix.Build(context.Background()))

	assert.Equal(t, []string{"pom.xml", "src", "src/main", "src/main/java", "src/main/java/App.java", "web"}, keys(ix.Entries()))
	assert.Equal(t, []string{"pom.xml", "src/main/java/App.java"}, keys(ix.Files(nil)))
	assert.Equal(t, []string{"src/main/java"}, keys(ix.Dirs(func(e Entry) bool { return e.Name() == "java" })))
	assert.True(t, ix.Has(`src\main`))
	assert.False(t, ix.Capped())
}

func TestMaxFileCount(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt", "b.txt", "c.txt")
	ix := New(Options{Root: root, MaxFileCount: 2})
	require.NoError(t, ix.Build(context.Background()))
	assert.Len(t, ix.Files(nil), 2)
	assert.True(t, ix.Capped())
	assert.False(t, ix.Add("d.txt", false))
}

func TestAddRemove(t *testing.T) {
	ix := New(Options{Root: t.TempDir(), Filter: NewFilter(nil, []string{"**/*.tmp"}, nil)})
	assert.True(t, ix.Add("src", true))
	assert.True(t, ix.Add("src/a.go", false))
	assert.True(t, ix.Add("src/sub/b.go", false))
	assert.False(t, ix.Add("src/a.go", false), "already present")
	assert.False(t, ix.Add("x.tmp", false), "filtered")
	assert.False(t, ix.Add("", true))

	assert.Equal(t, 3, ix.Remove("src"))
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 0, ix.Remove("src"))
}

func TestBuildCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(Options{Root: root}).Build(ctx), context.Canceled)
}

// TestWatcherTracksChanges tests that created and removed paths reach the index
func TestWatcherTracksChanges(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "src/App.java")
	ix := New(Options{Root: root})
	require.NoError(t, ix.Build(context.Background()))

	w, err := NewWatcher(ix, 20*time.Millisecond)
	require.NoError(t, err)
	var batches atomic.Int32
	w.SetOnChange(func(int, int) { batches.Add(1) })
	require.NoError(t, w.Start())
	defer w.Stop()

	writeTree(t, root, "src/Other.java")
	require.Eventually(t, func() bool { return ix.Has("src/Other.java") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "api"), 0755))
	require.Eventually(t, func() bool { return ix.Has("docs") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "src")))
	require.Eventually(t, func() bool { return !ix.Has("src") && !ix.Has("src/App.java") }, 2*time.Second, 10*time.Millisecond)

	assert.Positive(t, batches.Load())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
