package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/standardbeagle/tdmaps/internal/config"
)

// TestProject is a temporary project tree removed when the test ends
// Usage:
//
//	p := testhelpers.NewTestProject(t).
//		AddFile("src/main/java/App.java", "class App {}").
//		AddMapping("team.json", `{"mappings":{"files":{"pom.xml":"Build"}}}`)
type TestProject struct {
	t    testing.TB
	root string
}

// NewTestProject creates an empty project directory
func NewTestProject(t testing.TB) *TestProject {
	t.Helper()
	return &TestProject{t: t, root: t.TempDir()}
}

// Root returns the absolute project root
func (p *TestProject) Root() string { return p.root }

// Path returns the absolute path of a "/" separated project-relative key
func (p *TestProject) Path(key string) string {
	return filepath.Join(p.root, filepath.FromSlash(key))
}

// MappingDir returns the absolute default mapping directory
func (p *TestProject) MappingDir() string {
	return p.Path(config.DefaultMappingDir)
}

// LocalPath returns the absolute path of the default local document
func (p *TestProject) LocalPath() string {
	return filepath.Join(p.MappingDir(), config.DefaultLocalFile)
}

// AddFile writes content to key, creating parent directories
func (p *TestProject) AddFile(key, content string) *TestProject {
	p.t.Helper()
	path := p.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.t.Fatalf("create directory for %s: %v", key, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.t.Fatalf("write %s: %v", key, err)
	}
	return p
}

// AddDir creates an empty directory at key
func (p *TestProject) AddDir(key string) *TestProject {
	p.t.Helper()
	if err := os.MkdirAll(p.Path(key), 0755); err != nil {
		p.t.Fatalf("create directory %s: %v", key, err)
	}
	return p
}

// AddMapping writes a mapping document into the mapping directory
func (p *TestProject) AddMapping(name, content string) *TestProject {
	p.t.Helper()
	return p.AddFile(config.DefaultMappingDir+"/"+name, content)
}

// AddLocal writes the local mapping document
func (p *TestProject) AddLocal(content string) *TestProject {
	p.t.Helper()
	return p.AddMapping(config.DefaultLocalFile, content)
}

// ReadFile returns the content of key
func (p *TestProject) ReadFile(key string) string {
	p.t.Helper()
	data, err := os.ReadFile(p.Path(key))
	if err != nil {
		p.t.Fatalf("read %s: %v", key, err)
	}
	return string(data)
}

// Config returns a test config rooted at the project
func (p *TestProject) Config() *TestConfigBuilder {
	return NewTestConfigBuilder(p.root)
}

// WaitFor waits for a condition to become true with timeout
// Usage:
//
//	testhelpers.WaitFor(t, func() bool {
//	    return s.Store().HasAnnotation("pom.xml")
//	}, 2*time.Second)
func WaitFor(t testing.TB, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
			return
		}
	}
}
