package version

import (
	"runtime/debug"
	"strings"
	"sync"
)

// Version is the current semantic version of tdmaps
const Version = "0.3.0"

// GitCommit can be set at build time:
// go build -ldflags "-X github.com/standardbeagle/tdmaps/internal/version.GitCommit=abc123"
var GitCommit = ""

var (
	revision     string
	revisionOnce sync.Once
)

// Revision returns the VCS revision the binary was built from, shortened to
// twelve characters and suffixed with "+dirty" for modified trees. It is
// empty when no build information is embedded.
func Revision() string {
	revisionOnce.Do(func() {
		revision = readRevision()
	})
	return revision
}

func readRevision() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "+dirty"
	}
	return rev
}

// String returns the version with the build revision when it is known
func String() string {
	var b strings.Builder
	b.WriteString(Version)
	if rev := Revision(); rev != "" {
		b.WriteString(" (")
		b.WriteString(rev)
		b.WriteString(")")
	}
	return b.String()
}
