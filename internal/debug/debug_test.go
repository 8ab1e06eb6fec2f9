package debug

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := MCPMode
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		MCPMode = originalMode
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

// TestIsDebugEnabled tests the build flag and MCP override.
func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	MCPMode = false
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	assert.True(t, IsDebugEnabled())

	MCPMode = true
	assert.False(t, IsDebugEnabled(), "MCP mode silences writer output")

	MCPMode = false
	EnableDebug = "false"
	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())
}

// TestLog tests component prefixes.
func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = false
	Log("TEST", "Hello %s", "World")

	assert.Contains(t, buf.String(), "[DEBUG:TEST]")
	assert.Contains(t, buf.String(), "Hello World")
}

// TestLog_MCPMode tests that MCP mode suppresses output.
func TestLog_MCPMode(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	MCPMode = true
	Log("TEST", "Should not appear")

	assert.Empty(t, buf.String())
}

// TestLogHelpers tests the component helpers.
func TestLogHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	EnableDebug = "true"
	MCPMode = false

	tests := []struct {
		name    string
		logFunc func(string, ...interface{})
		prefix  string
	}{
		{"LogStore", LogStore, "[DEBUG:STORE]"},
		{"LogLive", LogLive, "[DEBUG:LIVE]"},
		{"LogResolve", LogResolve, "[DEBUG:RESOLVE]"},
		{"LogIndex", LogIndex, "[DEBUG:INDEX]"},
		{"LogNetwork", LogNetwork, "[DEBUG:NET]"},
		{"LogMCP", LogMCP, "[DEBUG:MCP]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetDebugOutput(&buf)

			tt.logFunc("message %s", "test")

			assert.Contains(t, buf.String(), tt.prefix)
			assert.Contains(t, buf.String(), "message test")
		})
	}
}

// TestFatal tests that Fatal returns an error and logs outside MCP mode.
func TestFatal(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	MCPMode = false
	err := Fatal("test error: %s", "details")
	assert.EqualError(t, err, "fatal error: test error: details")
	assert.Contains(t, buf.String(), "[FATAL]")

	buf.Reset()
	MCPMode = true
	err = Fatal("another error")
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

// TestConcurrentLogging tests concurrent writers.
func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	SetDebugOutput(io.Discard)
	EnableDebug = "true"
	MCPMode = false

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			LogStore("save from goroutine %d", id)
		}(i)
	}
	wg.Wait()
}

// TestNoOutputWithNilWriter tests that a nil writer is a no-op.
func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetDebugOutput(nil)
	EnableDebug = "true"
	MCPMode = false

	Printf("test %s", "message")
	Log("TEST", "test %s", "message")
	LogLive("test %s", "message")
	_ = Fatal("test %s", "message")
}

// TestInitDebugLogFile tests file-backed debug output.
func TestInitDebugLogFile(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitDebugLogFile()
	assert.NoError(t, err)
	assert.NotEmpty(t, logPath)
	defer os.Remove(logPath)

	EnableDebug = "true"
	MCPMode = false
	Printf("Test log message\n")

	assert.NoError(t, CloseDebugLog())

	content, err := os.ReadFile(logPath)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "Test log message")
}

// TestInitDebugLogFile_MCPMode tests that a log file still records in MCP mode.
func TestInitDebugLogFile_MCPMode(t *testing.T) {
	defer saveAndRestoreState()()

	logPath, err := InitDebugLogFile()
	assert.NoError(t, err)
	defer os.Remove(logPath)

	EnableDebug = "true"
	MCPMode = true
	assert.True(t, IsDebugEnabled())
	LogMCP("tool call %s\n", "resolve")

	assert.NoError(t, CloseDebugLog())
	assert.False(t, IsDebugEnabled())

	content, err := os.ReadFile(logPath)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "[DEBUG:MCP] tool call resolve")
}
