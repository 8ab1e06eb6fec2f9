// Package pathutil converts between absolute file system paths and the
// project-relative, slash-separated keys annotations are stored under.
//
// Annotation keys never carry a leading slash, never use backslashes and
// never escape the project root. A path outside the root has no key at all.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Display returns p relative to rootDir when it lies inside the root, for
// messages. Relative paths and paths outside the root are returned unchanged.
func Display(p, rootDir string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	key, ok := RelativeKey(p, rootDir)
	switch {
	case !ok:
		return p
	case key == "":
		return "."
	}
	return key
}

// RelativeKey returns the annotation key for p under rootDir. Relative
// paths are taken as relative to the root. The root itself maps to "".
// ok is false when p is outside the root.
func RelativeKey(p, rootDir string) (key string, ok bool) {
	if p == "" || rootDir == "" {
		return "", false
	}
	if !filepath.IsAbs(p) {
		return Key(p)
	}

	relPath, err := filepath.Rel(filepath.Clean(rootDir), filepath.Clean(p))
	if err != nil {
		return "", false
	}
	return Key(relPath)
}

// Key normalizes a root-relative path and reports whether it stays inside
// the root. "a/../../b" escapes and has no key.
func Key(p string) (string, bool) {
	key := Normalize(p)
	if key == ".." || strings.HasPrefix(key, "../") {
		return "", false
	}
	return key, true
}

// Normalize turns a user or OS supplied relative path into key form:
// backslashes become slashes, "." and ".." elements are resolved and
// leading or trailing slashes are dropped.
func Normalize(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Leaf returns the last element of a key ("" for the root)
func Leaf(key string) string {
	if key == "" {
		return ""
	}
	return path.Base(key)
}

// Dir returns the directory portion of a key, "" at the top level
func Dir(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	return key[:i]
}

// Abs joins a key back onto the project root
func Abs(rootDir, key string) string {
	if key == "" {
		return filepath.Clean(rootDir)
	}
	return filepath.Join(rootDir, filepath.FromSlash(key))
}
