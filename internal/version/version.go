// Package version exposes build metadata for the cozyreq binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags on release builds. When empty, values are resolved from
// the module build info embedded by the toolchain.
var (
	Version = ""
	Commit  = ""
)

func resolve() (version, commit string) {
	version, commit = Version, Commit

	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
					if len(commit) > 12 {
						commit = commit[:12]
					}
				}
			case "vcs.modified":
				if setting.Value == "true" && commit != "" {
					commit += "-dirty"
				}
			}
		}
	}

	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

// Info returns the one-line string printed by --version.
func Info() string {
	version, commit := resolve()
	return fmt.Sprintf("cozyreq %s (%s, %s/%s)", version, commit, runtime.GOOS, runtime.GOARCH)
}
