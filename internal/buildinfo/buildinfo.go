// Package buildinfo contains build-time metadata injected with -ldflags.
package buildinfo

import "fmt"

// Set with -ldflags "-X .../internal/buildinfo.Version=v1.2.3".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// Context carries build metadata separately from user configuration.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata of the running binary.
func Current() Context {
	return Context{Version: Version, BuildDate: BuildDate}
}

// Release is the release name reported to error telemetry.
func (c Context) Release() string {
	return "myeventlane@" + c.Version
}

func (c Context) String() string {
	return fmt.Sprintf("myeventlane %s (built %s)", c.Version, c.BuildDate)
}
