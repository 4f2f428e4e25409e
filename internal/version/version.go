// Package version reports the modernity build version.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is set at build time with -ldflags "-X .../version.Commit=<sha>".
var Commit = ""

// Get returns the release version, with whitespace trimmed.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns a one-line description of the build.
func String() string {
	v := "modernity " + Get()
	if Commit != "" {
		v += " (" + Commit + ")"
	}
	return fmt.Sprintf("%s %s/%s", v, runtime.GOOS, runtime.GOARCH)
}
