// Package version formats the build information stamped in by ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name printed in version output
const Name = "pwmbench"

// GetVersion returns "version-commit", or just the version when no commit
// was stamped
func GetVersion(version, commit, buildTime string) string {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		return version
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s-%s", version, commit)
}

// GetDetailedVersion returns detailed version information
func GetDetailedVersion(version, commit, buildTime string) string {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if buildTime == "" {
		buildTime = "unknown"
	}

	return fmt.Sprintf(`%s (PWM peripheral verification bench)
Version:    %s
Commit:     %s
Built:      %s
Go version: %s
OS/Arch:    %s/%s`,
		Name, version, commit, buildTime,
		runtime.Version(),
		runtime.GOOS, runtime.GOARCH)
}
