package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	devVersion  = "0.1.0-dev"
	devRevision = "HEAD"

	shortRevisionLen = 7
)

// Overridden with -ldflags "-X github.com/openmined/syftmirror/internal/version.Version=..."
var (
	AppName   = "SyftMirror"
	Version   = devVersion
	Revision  = devRevision
	BuildDate = ""
)

// applyBuildInfo fills whatever ldflags left at the dev defaults from the
// module version and the vcs.* build settings
func applyBuildInfo(mainVersion string, settings map[string]string) {
	if isDefault(Version, devVersion) && mainVersion != "" && mainVersion != "(devel)" {
		Version = strings.TrimPrefix(mainVersion, "v")
	}

	if rev := settings["vcs.revision"]; isDefault(Revision, devRevision) && rev != "" {
		if settings["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Revision = rev
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func isDefault(value, def string) bool {
	return value == "" || value == def
}

func buildSettings(info *debug.BuildInfo) map[string]string {
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

// shortRevision trims a full commit hash, keeping a -dirty suffix
func shortRevision() string {
	rev, dirty := strings.CutSuffix(Revision, "-dirty")
	if len(rev) > shortRevisionLen {
		rev = rev[:shortRevisionLen]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// Short returns `0.1.0 (5e23a41)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, shortRevision())
}

// ShortWithApp returns `SyftMirror 0.1.0 (5e23a41)`
func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `0.1.0 (5e23a41...; go1.24.0; linux/amd64; 2026-01-01T00:00:00Z)`
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

// LogAttrs returns key/value pairs describing the build for the startup log line
func LogAttrs() []any {
	return []any{"version", Version, "revision", shortRevision(), "go", runtime.Version()}
}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		applyBuildInfo(info.Main.Version, buildSettings(info))
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
