// Package version reports the assetguard build identity, preferring ldflags values and falling
// back to the Go build metadata embedded in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

var (
	AppName = "assetguard"

	// Set with -ldflags "-X github.com/openmined/assetguard/internal/version.Version=..."
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

func applyBuildInfo(mainVersion string, settings map[string]string) {
	if (Version == devVersion || Version == "") && mainVersion != "" && mainVersion != "(devel)" {
		Version = strings.TrimPrefix(mainVersion, "v")
	}

	if Revision == "HEAD" || Revision == "" {
		if r := settings["vcs.revision"]; r != "" {
			if settings["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func resolveFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	applyBuildInfo(info.Main.Version, settings)
}

// Short returns `0.1.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// ShortWithApp returns `assetguard 0.1.0 (5e23a4)`
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

func init() {
	resolveFromBuildInfo()
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
