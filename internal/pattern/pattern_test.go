package pattern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesFile(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		pattern      string
		relativePath string
		expected     bool
	}{
		{"exact equal", "pom.xml", "pom.xml", "", true},
		{"exact ignores case", "POM.XML", "pom.xml", "", true},
		{"exact different", "pom.xml.bak", "pom.xml", "", false},
		{"glob star is not a regex", "UserController.java", "*Controller.java", "", false},
		{"regex full match", "UserController.java", `.*Controller\.java`, "", true},
		{"regex anchored", "UserController.java.orig", `.*Controller\.java`, "", false},
		{"regex caret", "Application.java", `^Application.*`, "", true},
		{"regex alternation anchored as a whole", "b.txt", `a\.txt|b\.txt`, "", true},
		{"mixed matches directory suffix", "pom.xml", "com/common/pom.xml", "src/com/common/pom.xml", true},
		{"mixed exact directory", "pom.xml", "com/common/pom.xml", "com/common/pom.xml", true},
		{"mixed wrong directory", "pom.xml", "com/common/pom.xml", "src/com/other/pom.xml", false},
		{"mixed partial segment", "pom.xml", "com/common/pom.xml", "src/xcom/common/pom.xml", false},
		{"mixed wrong name", "build.xml", "com/common/pom.xml", "com/common/build.xml", false},
		{"mixed without path", "pom.xml", "com/common/pom.xml", "", true},
		{"mixed name ignores case", "Pom.xml", "com/common/pom.xml", "com/common/Pom.xml", true},
		{"mixed top level file", "pom.xml", "com/pom.xml", "pom.xml", false},
		{"empty pattern", "pom.xml", "", "", false},
		{"bad regex degrades to containment", "a(b.*c", "(b.*c", "", true},
		{"bad regex degraded miss", "other.txt", "(b.*c", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchesFile(tt.fileName, tt.pattern, tt.relativePath))
		})
	}
}

func TestMatchesPackage(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		pattern  string
		expected bool
	}{
		{"leaf segment", "com/consumer/service", "service", true},
		{"dot inside name is not a separator", "com/consumer.service", "service", false},
		{"leaf only", "com/service/impl", "service", false},
		{"substring is not a segment", "src/main/java/com/app/usercontroller", "controller", false},
		{"controller layer", "src/main/java/com/app/controller", "controller", true},
		{"ignores case", "src/Controller", "controller", true},
		{"multi segment dotted", "src/main/java/com/app/service", "app.service", true},
		{"multi segment slashed", "src/main/java/com/app/service", "app/service", true},
		{"multi segment wrong order", "src/com/service/app", "app.service", false},
		{"pattern longer than path", "service", "com.app.service", false},
		{"dotted package name", "com.app.service", "app.service", true},
		{"dotted leaf", "com.app.service", "service", true},
		{"dotted pattern against dotted directory", "a/b.c", "b.c", true},
		{"dotted pattern spans slash and dot", "com/consumer.service", "consumer.service", true},
		{"dotted pattern across directories", "src/b/c", "b.c", true},
		{"dotted pattern must be a suffix", "a/b.c/d", "b.c", false},
		{"regex on dotted path", "src/main/java/com/app/service", `.*\.service`, true},
		{"regex anchored", "src/service/impl", `.*\.service`, false},
		{"regex caret", "src/main", `^src.*`, true},
		{"bad regex degrades to containment", "com/a(b/x", "a(b$", false},
		{"empty path", "", "service", false},
		{"empty pattern", "com/service", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchesPackage(tt.path, tt.pattern))
		})
	}
}

// TestMatchesFileCaseInsensitiveProperty tests that plain patterns match exactly the case variants.
func TestMatchesFileCaseInsensitiveProperty(t *testing.T) {
	for _, name := range []string{"pom.xml", "README.md", "application.yml", "Dockerfile", "a-b_c.txt"} {
		variants := []string{name, strings.ToUpper(name), strings.ToLower(name)}
		for _, v := range variants {
			assert.True(t, MatchesFile(v, name, ""), "%s vs %s", v, name)
		}
		assert.False(t, MatchesFile(name+"x", name, ""))
		assert.False(t, MatchesFile("x"+name, name, ""))
	}
}

func TestFileKind(t *testing.T) {
	assert.Equal(t, KindRegex, FileKind(`.*\.java`))
	assert.Equal(t, KindRegex, FileKind(`^App`))
	assert.Equal(t, KindRegex, FileKind(`Main$`))
	assert.Equal(t, KindMixed, FileKind("com/common/pom.xml"))
	assert.Equal(t, KindExact, FileKind("pom.xml"))
	assert.Equal(t, "regex", KindRegex.String())
	assert.Equal(t, "mixed", KindMixed.String())
	assert.Equal(t, "exact", KindExact.String())
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("pom.xml"))
	assert.True(t, Valid(`.*\.java`))
	assert.False(t, Valid(`(.*`))
	// Cached failure is reported the same way
	assert.False(t, Valid(`(.*`))
}
