// Package pattern decides whether a file name or directory path matches a
// stored pattern key.
//
// A pattern is one of:
//   - a regular expression, recognised by any of ".*", "\", "$" or "^",
//     matched against the whole candidate
//   - a mixed "dir/file" key: the file name must equal the last element and
//     the file's directory must end with the directory part, segment by segment
//   - a bare file name, compared case-insensitively
//   - a directory name or dotted/slashed path suffix, compared by segments
//
// Expressions that fail to compile degrade to case-insensitive substring
// containment instead of failing the lookup.
package pattern

import (
	"regexp"
	"strings"
	"sync"
)

// Kind classifies a pattern key
type Kind int

const (
	KindExact Kind = iota
	KindMixed
	KindRegex
)

func (k Kind) String() string {
	switch k {
	case KindMixed:
		return "mixed"
	case KindRegex:
		return "regex"
	default:
		return "exact"
	}
}

// regexCache holds compiled expressions keyed by pattern text; a nil entry
// records a pattern that does not compile
var regexCache sync.Map

// IsRegex reports whether pattern is treated as a regular expression
func IsRegex(pattern string) bool {
	return strings.Contains(pattern, ".*") ||
		strings.Contains(pattern, "\\") ||
		strings.Contains(pattern, "$") ||
		strings.Contains(pattern, "^")
}

// FileKind reports how MatchesFile will interpret pattern
func FileKind(pattern string) Kind {
	switch {
	case IsRegex(pattern):
		return KindRegex
	case strings.Contains(pattern, "/"):
		return KindMixed
	default:
		return KindExact
	}
}

// MatchesFile reports whether fileName (a leaf name) matches pattern.
// relativePath is the project-relative path of the file, "" when unknown;
// it only matters for mixed patterns.
func MatchesFile(fileName, pattern, relativePath string) bool {
	if pattern == "" {
		return false
	}
	switch FileKind(pattern) {
	case KindRegex:
		re, ok := compile(pattern)
		if !ok {
			return strings.Contains(strings.ToLower(fileName), strings.ToLower(pattern))
		}
		return re.MatchString(fileName)
	case KindMixed:
		return matchesMixed(fileName, pattern, relativePath)
	default:
		return strings.EqualFold(fileName, pattern)
	}
}

func matchesMixed(fileName, pattern, relativePath string) bool {
	i := strings.LastIndex(pattern, "/")
	expectedDir, expectedName := pattern[:i], pattern[i+1:]

	if !strings.EqualFold(fileName, expectedName) {
		return false
	}
	if relativePath == "" {
		return true
	}

	fileDir := ""
	if j := strings.LastIndex(relativePath, "/"); j >= 0 {
		fileDir = relativePath[:j]
	}
	return hasSegmentSuffix(fileDir, strings.Trim(expectedDir, "/"))
}

// hasSegmentSuffix reports whether dir ends with suffix on a "/" boundary
func hasSegmentSuffix(dir, suffix string) bool {
	if suffix == "" || dir == suffix {
		return true
	}
	return strings.HasSuffix(dir, "/"+suffix)
}

// MatchesPackage reports whether a directory path matches pattern.
// Paths use "/" between directories; a path without "/" is read as a dotted
// package name. A one-segment pattern names the whole leaf directory, so
// "service" does not match "com/consumer.service". A dotted pattern is
// compared with the path split on both "/" and ".", so "b.c" matches "a/b.c".
func MatchesPackage(packagePath, pattern string) bool {
	if pattern == "" {
		return false
	}
	if IsRegex(pattern) {
		dotted := strings.ReplaceAll(packagePath, "/", ".")
		re, ok := compile(pattern)
		if !ok {
			return strings.Contains(strings.ToLower(dotted), strings.ToLower(pattern))
		}
		return re.MatchString(dotted)
	}

	lowerPath := strings.ToLower(packagePath)
	patternSegments := strings.Split(strings.ToLower(strings.ReplaceAll(strings.Trim(pattern, "/."), "/", ".")), ".")
	if len(patternSegments) == 1 {
		leaf := packageSegments(lowerPath)
		return len(leaf) > 0 && leaf[len(leaf)-1] == patternSegments[0]
	}

	pathSegments := dottedSegments(lowerPath)
	if len(pathSegments) == 0 {
		return false
	}

	if len(patternSegments) > len(pathSegments) {
		return false
	}
	start := len(pathSegments) - len(patternSegments)
	for i, seg := range patternSegments {
		if pathSegments[start+i] != seg {
			return false
		}
	}
	return true
}

func packageSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	if strings.Contains(p, "/") {
		return strings.Split(p, "/")
	}
	return strings.Split(p, ".")
}

func dottedSegments(p string) []string {
	p = strings.Trim(strings.ReplaceAll(p, "/", "."), ".")
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// compile returns the anchored expression for pattern, caching the result
func compile(pattern string) (*regexp.Regexp, bool) {
	if cached, ok := regexCache.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re, re != nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		regexCache.Store(pattern, (*regexp.Regexp)(nil))
		return nil, false
	}
	regexCache.Store(pattern, re)
	return re, true
}

// Valid reports whether a regex pattern compiles; non-regex patterns are always valid
func Valid(pattern string) bool {
	if !IsRegex(pattern) {
		return true
	}
	_, ok := compile(pattern)
	return ok
}
