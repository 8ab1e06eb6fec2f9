package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplay(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	tests := []struct {
		name     string
		path     string
		rootDir  string
		expected string
	}{
		{"simple relative path", "/home/user/project/src/main.go", "/home/user/project", "src/main.go"},
		{"root level file", "/home/user/project/README.md", "/home/user/project", "README.md"},
		{"same directory", "/home/user/project", "/home/user/project", "."},
		{"already relative path", "src/main.go", "/home/user/project", "src/main.go"},
		{"path outside root", "/other/location/file.go", "/home/user/project", "/other/location/file.go"},
		{"sibling with shared prefix", "/home/user/project2/a.go", "/home/user/project", "/home/user/project2/a.go"},
		{"dotdot named file stays inside", "/home/user/project/..hidden", "/home/user/project", "..hidden"},
		{"empty root directory", "/home/user/project/file.go", "", "/home/user/project/file.go"},
		{"empty path", "", "/home/user/project", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Display(tt.path, tt.rootDir))
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "plain", in: "src/main.go", want: "src/main.go", ok: true},
		{name: "inner dotdot resolves", in: "a/../b", want: "b", ok: true},
		{name: "leading dotdot", in: "../outside/secret.txt", ok: false},
		{name: "dotdot alone", in: "..", ok: false},
		{name: "inner dotdot escapes", in: "a/../../b", ok: false},
		{name: "backslash dotdot", in: "..\\secret.txt", ok: false},
		{name: "dotdot prefixed name", in: "..hidden/x", want: "..hidden/x", ok: true},
		{name: "root", in: ".", want: "", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := Key(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, key)
		})
	}
}

// TestRelativeKey tests key derivation and the outside-root rule.
func TestRelativeKey(t *testing.T) {
	root := filepath.Join(t.TempDir(), "project")

	key, ok := RelativeKey(filepath.Join(root, "src", "main", "pom.xml"), root)
	assert.True(t, ok)
	assert.Equal(t, "src/main/pom.xml", key)

	key, ok = RelativeKey(root, root)
	assert.True(t, ok)
	assert.Equal(t, "", key)

	_, ok = RelativeKey(filepath.Join(filepath.Dir(root), "elsewhere", "x.txt"), root)
	assert.False(t, ok, "paths outside the root have no key")

	_, ok = RelativeKey("", root)
	assert.False(t, ok)

	_, ok = RelativeKey("../outside/secret.txt", "/home/user/project")
	assert.False(t, ok, "relative paths may not climb out of the root")

	_, ok = RelativeKey("a/../../b", root)
	assert.False(t, ok)

	key, ok = RelativeKey("a/../b", root)
	assert.True(t, ok)
	assert.Equal(t, "b", key)

	key, ok = RelativeKey("src\\app\\Main.java", root)
	assert.True(t, ok)
	assert.Equal(t, "src/app/Main.java", key)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"src\\main\\java", "src/main/java"},
		{"./src/", "src"},
		{"/pom.xml", "pom.xml"},
		{".", ""},
		{"", ""},
		{"././a/b", "a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestLeafAndDir(t *testing.T) {
	assert.Equal(t, "pom.xml", Leaf("com/common/pom.xml"))
	assert.Equal(t, "pom.xml", Leaf("pom.xml"))
	assert.Equal(t, "", Leaf(""))

	assert.Equal(t, "com/common", Dir("com/common/pom.xml"))
	assert.Equal(t, "", Dir("pom.xml"))
}

func TestAbs(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), Abs(root, "a/b.txt"))
	assert.Equal(t, filepath.Clean(root), Abs(root, ""))
}
