package resolve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/tdmaps/internal/builtin"
	"github.com/standardbeagle/tdmaps/internal/live"
	"github.com/standardbeagle/tdmaps/internal/store"
)

type fixture struct {
	root     string
	store    *store.Store
	live     *live.Cache
	library  *builtin.Resolver
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(context.Background(), store.Options{Root: root})
	require.NoError(t, err)
	cache := live.NewCache(s.MappingDir(), nil, time.Hour)
	t.Cleanup(cache.Close)
	lib := builtin.New(true)
	return &fixture{
		root:     root,
		store:    s,
		live:     cache,
		library:  lib,
		pipeline: New(s, cache, lib),
	}
}

func file(path string) Entry { return Entry{Path: path, Kind: FileEntry} }
func dir(path string) Entry  { return Entry{Path: path, Kind: DirectoryEntry} }

// TestExactBeatsPattern tests that an exact annotation wins over a matching pattern
func TestExactBeatsPattern(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetFileMatchAnnotation(`.*\.xml`, "Any XML"))
	require.NoError(t, f.store.SetAnnotation("pom.xml", "  Root pom  ", "#FF0000"))

	r, ok := f.pipeline.Resolve(file("pom.xml"))
	require.True(t, ok)
	assert.Equal(t, "Root pom", r.Text)
	assert.Equal(t, "#FF0000", r.Color)
	assert.Equal(t, SourceUserFile, r.Source)

	r, ok = f.pipeline.Resolve(file("module/pom.xml"))
	require.True(t, ok)
	assert.Equal(t, "Any XML", r.Text)
	assert.Equal(t, SourceUserFileMatch, r.Source)
	assert.Equal(t, `.*\.xml`, r.Key)
}

// TestUserBeatsBuiltin tests that any user layer wins over the library
func TestUserBeatsBuiltin(t *testing.T) {
	f := newFixture(t)

	r, ok := f.pipeline.Resolve(file("service/pom.xml"))
	require.True(t, ok)
	assert.Equal(t, SourceBuiltinFile, r.Source)
	assert.Equal(t, "Maven project configuration", r.Text)
	assert.Equal(t, "#BBBBBB", r.DisplayColor())

	require.NoError(t, f.store.SetFileMatchAnnotation("pom.xml", "User pom pattern"))
	r, ok = f.pipeline.Resolve(file("service/pom.xml"))
	require.True(t, ok)
	assert.Equal(t, "User pom pattern", r.Text)
	assert.Equal(t, SourceUserFileMatch, r.Source)

	require.NoError(t, f.store.SetPackageMatchAnnotation("controller", "Our controllers"))
	r, ok = f.pipeline.Resolve(dir("src/main/java/com/app/controller"))
	require.True(t, ok)
	assert.Equal(t, "Our controllers", r.Text)
}

// TestLiveBeatsStore tests that an unsaved edit shows before the stored text
func TestLiveBeatsStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetAnnotation("pom.xml", "stored", "#00FF00"))
	require.NoError(t, f.store.SetPackageAnnotation("src", "stored dir", ""))

	require.True(t, f.live.Update(`{"mappings": {
		"files": {"pom.xml": "editing"},
		"packages": {"src": "editing dir"},
		"packagesTextColor": {"src": "#123456"}}}`))

	r, ok := f.pipeline.Resolve(file("pom.xml"))
	require.True(t, ok)
	assert.Equal(t, "editing", r.Text)
	assert.Equal(t, SourceLive, r.Source)
	assert.Equal(t, "#00FF00", r.Color, "store color is used when the live document has none")

	r, ok = f.pipeline.Resolve(dir("src"))
	require.True(t, ok)
	assert.Equal(t, "editing dir", r.Text)
	assert.Equal(t, "#123456", r.Color)

	// A file lookup never reads the live package map
	r, ok = f.pipeline.Resolve(file("src"))
	require.True(t, ok)
	assert.Equal(t, SourceUserPackage, r.Source)
}

func TestToggleHidesEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetAnnotation("pom.xml", "stored", ""))
	f.store.SetProjectTreeAnnotationsEnabled(false)

	_, ok := f.pipeline.Resolve(file("pom.xml"))
	assert.False(t, ok)
}

func TestBuiltinDisabled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetBuiltinMappingsEnabled(false))
	_, ok := f.pipeline.Resolve(file("pom.xml"))
	assert.False(t, ok)
}

// TestSkippedNames tests that very short dot names are never annotated
func TestSkippedNames(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetAnnotation(".a", "hidden", ""))
	require.NoError(t, f.store.SetAnnotation(".env", "Environment", ""))

	tests := []struct {
		name  string
		entry Entry
		found bool
	}{
		{name: "two char dot name", entry: file(".a"), found: false},
		{name: "dot dot", entry: dir(".."), found: false},
		{name: "longer dot name", entry: file(".env"), found: true},
		{name: "root without name", entry: dir(""), found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := f.pipeline.Resolve(tt.entry)
			assert.Equal(t, tt.found, ok)
		})
	}
}

// TestBuiltinLayers tests the builtin lookup order for files and directories
func TestBuiltinLayers(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		entry  Entry
		text   string
		source Source
	}{
		{name: "file name", entry: file("docs/application.yml"), text: "Spring Boot configuration", source: SourceBuiltinFile},
		{name: "directory name", entry: dir("web/WEB-INF"), text: "Web application private resources", source: SourceBuiltinPackage},
		{name: "file pattern", entry: file("src/UserMapper.xml"), text: "MyBatis SQL mapping", source: SourceBuiltinFileMatch},
		{name: "package pattern", entry: dir("src/main/java/com/app/service/impl"), text: "Service implementations", source: SourceBuiltinPackageMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := f.pipeline.Resolve(tt.entry)
			require.True(t, ok)
			assert.Equal(t, tt.text, r.Text)
			assert.Equal(t, tt.source, r.Source)
			assert.True(t, r.Source.IsBuiltin())
		})
	}

	_, ok := f.pipeline.Resolve(dir("src/main/java/com/app/usercontroller"))
	assert.False(t, ok)
}

func TestPackagePatternColor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetPackageMatchAnnotation("dao", "DAO"))
	require.NoError(t, f.store.SetPackageTextColor("src/dao", "#ABCDEF"))

	r, ok := f.pipeline.Resolve(dir("src/dao"))
	require.True(t, ok)
	assert.Equal(t, SourceUserPackageMatch, r.Source)
	assert.Equal(t, "#ABCDEF", r.Color)
}

func TestResolvePath(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetAnnotation("src/App.java", "Entry point", ""))

	r, ok := f.pipeline.ResolvePath(f.root, filepath.Join(f.root, "src", "App.java"), FileEntry)
	require.True(t, ok)
	assert.Equal(t, "Entry point", r.Text)

	_, ok = f.pipeline.ResolvePath(f.root, filepath.Join(filepath.Dir(f.root), "elsewhere", "pom.xml"), FileEntry)
	assert.False(t, ok, "outside the root nothing resolves")

	_, ok = f.pipeline.Resolve(file("../pom.xml"))
	assert.False(t, ok, "escaping keys resolve to nothing, not to the builtin pom.xml")
}

func TestNilLayers(t *testing.T) {
	f := newFixture(t)
	p := New(f.store, nil, nil)
	_, ok := p.Resolve(file("pom.xml"))
	assert.False(t, ok)

	require.NoError(t, f.store.SetAnnotation("pom.xml", "stored", ""))
	r, ok := p.Resolve(file("pom.xml"))
	require.True(t, ok)
	assert.Equal(t, "stored", r.Text)
}

func TestSourceNames(t *testing.T) {
	assert.Equal(t, "live", SourceLive.String())
	assert.Equal(t, "builtin-package-match", SourceBuiltinPackageMatch.String())
	assert.Equal(t, "unknown", Source(99).String())
	assert.Equal(t, "directory", DirectoryEntry.String())
	assert.False(t, SourceUserFile.IsBuiltin())
}
