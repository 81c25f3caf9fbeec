package version

import (
	"fmt"
	"runtime"
)

// Overridden at link time with -ldflags "-X github.com/soyeahso/chatconn/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a one-line build description.
func Info() string {
	return fmt.Sprintf("chatconn %s (%s, %s) %s/%s %s",
		Version, abbrev(Commit), Date, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func abbrev(commit string) string {
	const n = 8
	if len(commit) > n {
		return commit[:n]
	}
	return commit
}
