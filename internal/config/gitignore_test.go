package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitignoreParser_BasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{"exact file", "secret.txt", "secret.txt", false, true},
		{"exact file nested", "secret.txt", "config/secret.txt", false, true},
		{"exact no match", "secret.txt", "secret.txt.bak", false, false},
		{"suffix wildcard", "*.log", "logs/app.log", false, true},
		{"suffix wildcard no match", "*.log", "app.logger", false, false},
		{"prefix wildcard", "temp*", "tempfile", false, true},
		{"directory pattern on dir", "build/", "build", true, true},
		{"directory pattern on nested dir", "build/", "module/build", true, true},
		{"directory pattern on file inside", "build/", "build/output.js", false, true},
		{"directory pattern ignores same-named file", "build/", "build", false, false},
		{"absolute pattern root", "/vendor", "vendor", true, true},
		{"absolute pattern nested", "/vendor", "lib/vendor", true, false},
		{"slash pattern anchored", "docs/*.md", "docs/readme.md", false, true},
		{"slash pattern nested", "docs/*.md", "sub/docs/readme.md", false, false},
		{"question mark", "file?.txt", "file1.txt", false, true},
		{"char class", "file[0-9].txt", "file7.txt", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gp := NewGitignoreParser()
			gp.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, gp.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestGitignoreParser_NegationPriority(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("*.log")
	gp.AddPattern("!important.log")

	assert.True(t, gp.ShouldIgnore("debug.log", false))
	assert.False(t, gp.ShouldIgnore("important.log", false))

	// A later pattern re-ignores
	gp.AddPattern("important.log")
	assert.True(t, gp.ShouldIgnore("important.log", false))
}

func TestGitignoreParser_LoadFromContent(t *testing.T) {
	content := `# comment line

node_modules/
*.tmp
/dist
!keep.tmp
`
	gp := NewGitignoreParser()
	require.NoError(t, gp.Parse(strings.NewReader(content)))
	assert.Equal(t, 4, gp.Len())

	assert.True(t, gp.ShouldIgnore("web/node_modules", true))
	assert.True(t, gp.ShouldIgnore("a.tmp", false))
	assert.False(t, gp.ShouldIgnore("keep.tmp", false))
	assert.True(t, gp.ShouldIgnore("dist", true))
	assert.False(t, gp.ShouldIgnore("src/dist", true))
}

func TestGitignoreParser_LoadGitignore(t *testing.T) {
	dir := t.TempDir()

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(dir), "missing .gitignore is fine")
	assert.Equal(t, 0, gp.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("out/\n"), 0644))
	require.NoError(t, gp.LoadGitignore(dir))
	assert.True(t, gp.ShouldIgnore("out/x.txt", false))
}

func TestGitignoreParser_WindowsSeparators(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("build/")
	assert.True(t, gp.ShouldIgnore(filepath.Join("build", "a.o"), false))
}

func TestGitignoreParser_GetExclusionPatterns(t *testing.T) {
	gp := NewGitignoreParser()
	for _, p := range []string{"node_modules/", "/dist/", "*.log", "/rootfile", "!keep.log"} {
		gp.AddPattern(p)
	}

	assert.Equal(t, []string{
		"**/node_modules/**",
		"dist/**",
		"**/*.log",
		"**/*.log/**",
		"rootfile",
		"rootfile/**",
	}, gp.GetExclusionPatterns())
}
