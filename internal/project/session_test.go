package project

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/tdmaps/internal/resolve"
	"github.com/standardbeagle/tdmaps/internal/search"
	"github.com/standardbeagle/tdmaps/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

const localDoc = `{
  "builtinMappingsEnabled": true,
  "mappings": {
    "files": {"pom.xml": "Root build"},
    "packages": {"src/main": "Main sources"},
    "fileMatch": {".*Test\\.java": "Unit test"}
  }
}`

func openSession(t *testing.T, b *testhelpers.TestConfigBuilder) *Session {
	t.Helper()
	s, err := Open(context.Background(), b.Build())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// TestOpenResolves tests that an opened session resolves through every layer
func TestOpenResolves(t *testing.T) {
	p := testhelpers.NewTestProject(t).
		AddFile("pom.xml", "<project/>").
		AddFile("src/main/java/AppTest.java", "class AppTest {}").
		AddLocal(localDoc)
	s := openSession(t, p.Config())

	tests := []struct {
		name   string
		entry  resolve.Entry
		text   string
		source resolve.Source
	}{
		{name: "user file", entry: resolve.Entry{Path: "pom.xml"}, text: "Root build", source: resolve.SourceUserFile},
		{name: "user package", entry: resolve.Entry{Path: "src/main", Kind: resolve.DirectoryEntry}, text: "Main sources", source: resolve.SourceUserPackage},
		{name: "user pattern", entry: resolve.Entry{Path: "src/main/java/AppTest.java"}, text: "Unit test", source: resolve.SourceUserFileMatch},
		{name: "builtin file", entry: resolve.Entry{Path: "src/main/resources/application.yml"}, text: "Spring Boot configuration", source: resolve.SourceBuiltinFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := s.Resolve(tt.entry)
			require.True(t, ok)
			assert.Equal(t, tt.text, r.Text)
			assert.Equal(t, tt.source, r.Source)
		})
	}

	r, ok := s.ResolvePath(p.Path("pom.xml"), resolve.FileEntry)
	require.True(t, ok)
	assert.Equal(t, "Root build", r.Text)
}

func TestOpenRequiresRoot(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.Error(t, err)
	_, err = Open(context.Background(), testhelpers.NewTestConfigBuilder("").Build())
	assert.Error(t, err)
}

func TestBuiltinToggle(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s := openSession(t, p.Config())

	require.NoError(t, s.SetBuiltinMappingsEnabled(false))
	_, ok := s.Resolve(resolve.Entry{Path: "application.yml"})
	assert.False(t, ok)
	assert.Empty(t, s.Library().Libraries())
	assert.Contains(t, p.ReadFile(".td-maps/local-description.json"), `"builtinMappingsEnabled": false`)

	require.NoError(t, s.SetBuiltinMappingsEnabled(true))
	_, ok = s.Resolve(resolve.Entry{Path: "application.yml"})
	assert.True(t, ok)
}

// TestBuiltinFlagFromDisk tests that the library honors the persisted flag
func TestBuiltinFlagFromDisk(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddLocal(`{"builtinMappingsEnabled": false, "mappings": {}}`)
	s := openSession(t, p.Config())
	assert.False(t, s.Library().Enabled())
}

func TestSearchBuildsIndex(t *testing.T) {
	p := testhelpers.NewTestProject(t).
		AddFile("pom.xml", "<project/>").
		AddFile("src/main/java/OrderTest.java", "class OrderTest {}").
		AddLocal(localDoc)
	s := openSession(t, p.Config())

	results, err := s.SearchWith(context.Background(), "unit test", search.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/main/java/OrderTest.java", results[0].Path)

	results, err = s.Search(context.Background(), "root build")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pom.xml", results[0].Path)

	ix, err := s.PathIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, ix.Has("pom.xml"))
	assert.False(t, ix.Has(".td-maps/local-description.json"))
}

// TestLiveEdit tests that edits show up before the document is saved and are saved after the debounce
func TestLiveEdit(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddLocal(localDoc)
	s := openSession(t, p.Config())

	var refreshed int
	s.OnRefresh(func() { refreshed++ })

	buf, err := s.OpenDocument(p.LocalPath())
	require.NoError(t, err)

	edited := strings.Replace(localDoc, "Root build", "Edited build", 1)
	assert.True(t, s.EditDocument(buf, edited))
	r, ok := s.Resolve(resolve.Entry{Path: "pom.xml"})
	require.True(t, ok)
	assert.Equal(t, "Edited build", r.Text)
	assert.Equal(t, resolve.SourceLive, r.Source)
	assert.Equal(t, 1, refreshed)

	// Half-typed content keeps the last valid state
	assert.False(t, s.EditDocument(buf, `{"mappings": {"files": {"pom.xml": "Ed`))
	r, _ = s.Resolve(resolve.Entry{Path: "pom.xml"})
	assert.Equal(t, "Edited build", r.Text)

	require.True(t, s.EditDocument(buf, edited))
	testhelpers.WaitFor(t, func() bool {
		return strings.Contains(p.ReadFile(".td-maps/local-description.json"), "Edited build")
	}, 2*time.Second)

	_, err = s.OpenDocument(p.Path("pom.xml"))
	assert.Error(t, err)
	s.CloseDocument(p.LocalPath())
	assert.False(t, s.Live().Registered(p.LocalPath()))
}

// TestStoreChangesReachLiveCache tests that store writes are not hidden by an earlier live edit
func TestStoreChangesReachLiveCache(t *testing.T) {
	tests := []struct {
		name   string
		close  bool
		change func(t *testing.T, s *Session)
		text   string
		found  bool
	}{
		{
			name:  "remove after closing the document",
			close: true,
			change: func(t *testing.T, s *Session) {
				require.NoError(t, s.Store().RemoveAnnotation("scripts/release.sh"))
			},
		},
		{
			name: "set while the document is open",
			change: func(t *testing.T, s *Session) {
				require.NoError(t, s.Store().SetAnnotation("scripts/release.sh", "New text", ""))
			},
			text:  "New text",
			found: true,
		},
		{
			name: "remove while the document is open",
			change: func(t *testing.T, s *Session) {
				require.NoError(t, s.Store().RemoveAnnotation("scripts/release.sh"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testhelpers.NewTestProject(t).AddLocal(`{"mappings": {"files": {"scripts/release.sh": "Release script"}}}`)
			s := openSession(t, p.Config())

			buf, err := s.OpenDocument(p.LocalPath())
			require.NoError(t, err)
			r, ok := s.Resolve(resolve.Entry{Path: "scripts/release.sh"})
			require.True(t, ok)
			assert.Equal(t, resolve.SourceLive, r.Source)
			if tt.close {
				s.CloseDocument(p.LocalPath())
			}

			tt.change(t, s)

			r, ok = s.Resolve(resolve.Entry{Path: "scripts/release.sh"})
			require.Equal(t, tt.found, ok, "resolved %q from %s", r.Text, r.Source)
			if tt.found {
				assert.Equal(t, tt.text, r.Text)
			}
			if !tt.close {
				assert.Equal(t, p.ReadFile(".td-maps/local-description.json"), buf.Text(), "open buffer follows the write")
			}
		})
	}
}

// TestExternalChangeReloads tests that mapping files written by other tools are picked up
func TestExternalChangeReloads(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddLocal(localDoc)
	s := openSession(t, p.Config().WithLiveWatch(true))

	p.AddMapping("team.json", `{"mappings": {"files": {"Makefile": "Team build"}}}`)
	testhelpers.WaitFor(t, func() bool {
		text, ok := s.Store().Annotation("Makefile")
		return ok && text == "Team build"
	}, 3*time.Second)

	// The store's own writes do not trigger another reload
	require.NoError(t, s.Store().SetAnnotation("README.md", "Docs", ""))
	text, ok := s.Store().Annotation("README.md")
	require.True(t, ok)
	assert.Equal(t, "Docs", text)
}

func TestIndexWatch(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddFile("pom.xml", "<project/>")
	s := openSession(t, p.Config().WithIndexWatch(true))

	ix, err := s.PathIndex(context.Background())
	require.NoError(t, err)
	require.True(t, ix.Has("pom.xml"))

	p.AddFile("build.gradle", "")
	testhelpers.WaitFor(t, func() bool { return ix.Has("build.gradle") }, 3*time.Second)
}

func TestExtract(t *testing.T) {
	p := testhelpers.NewTestProject(t).AddFile("src/Login.java", "/**\n * Login page\n */\nclass Login {}\n")
	s := openSession(t, p.Config())

	report, err := s.Extract(context.Background(), []string{p.Root()}, "#FF0000")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	r, ok := s.Resolve(resolve.Entry{Path: "src/Login.java"})
	require.True(t, ok)
	assert.Equal(t, "Login page", r.Text)
	assert.Equal(t, "#FF0000", r.Color)
}

// TestExtractHonoursGitignore tests that ignored trees are skipped when the index respects .gitignore
func TestExtractHonoursGitignore(t *testing.T) {
	p := testhelpers.NewTestProject(t).
		AddFile(".gitignore", "generated/\nscratch\n!keep.java\n").
		AddFile("src/Login.java", "/** Login page */\nclass Login {}\n").
		AddFile("generated/Model.java", "/** Generated model */\nclass Model {}\n").
		AddFile("src/scratch/Tmp.java", "/** Scratch */\nclass Tmp {}\n")

	tests := []struct {
		name      string
		gitignore bool
		succeeded int
	}{
		{name: "respected", gitignore: true, succeeded: 1},
		{name: "ignored", gitignore: false, succeeded: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := p.Config().Build()
			cfg.Index.RespectGitignore = tt.gitignore
			s, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			defer s.Close()

			report, err := s.Extract(context.Background(), []string{p.Root()}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.succeeded, report.Succeeded)
			assert.Equal(t, tt.gitignore, !s.Store().HasAnnotation("generated/Model.java"))
			assert.Equal(t, tt.gitignore, !s.Store().HasAnnotation("src/scratch/Tmp.java"))
			assert.True(t, s.Store().HasAnnotation("src/Login.java"))
		})
	}
}

func TestCloseTwice(t *testing.T) {
	p := testhelpers.NewTestProject(t)
	s, err := Open(context.Background(), p.Config().WithLiveWatch(true).Build())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.PathIndex(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
