// Package version reports the build version of the simlink binary and the
// link protocol it speaks.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"pkt.systems/simlink/schema"
)

const defaultModule = "pkt.systems/simlink"

// buildVersion is set via -ldflags "-X pkt.systems/simlink/internal/version.buildVersion=...".
var buildVersion = ""

// Info is what `simlink version` prints.
type Info struct {
	Module   string
	Version  string
	Protocol uint32
	Go       string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (protocol %d, %s)", i.Module, i.Version, i.Protocol, i.Go)
}

// Get collects the build and protocol versions.
func Get() Info {
	return Info{
		Module:   Module(),
		Version:  CurrentWithDirty(),
		Protocol: schema.ProtocolVersion,
		Go:       runtime.Version(),
	}
}

// Current returns the best available version string (without dirty suffix).
func Current() string {
	return currentFromBuildInfo(false)
}

// CurrentWithDirty returns the best available version string (including dirty suffix when available).
func CurrentWithDirty() string {
	return currentFromBuildInfo(true)
}

// Module returns the module path from build info when available.
func Module() string {
	info, ok := debug.ReadBuildInfo()
	if ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

func currentFromBuildInfo(includeDirty bool) string {
	if strings.TrimSpace(buildVersion) != "" {
		return normalizeVersion(buildVersion, includeDirty)
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return normalizeVersion(v, includeDirty)
		}
		if v := pseudoFromBuildInfo(info, includeDirty); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

func normalizeVersion(v string, includeDirty bool) string {
	value := strings.TrimSpace(v)
	if includeDirty {
		return value
	}
	return strings.TrimSuffix(value, "+dirty")
}

func pseudoFromBuildInfo(info *debug.BuildInfo, includeDirty bool) string {
	if info == nil {
		return ""
	}
	vcs := make(map[string]string, 3)
	for _, setting := range info.Settings {
		if strings.HasPrefix(setting.Key, "vcs.") {
			vcs[strings.TrimPrefix(setting.Key, "vcs.")] = setting.Value
		}
	}
	revision := vcs["revision"]
	stamp, err := time.Parse(time.RFC3339, vcs["time"])
	if revision == "" || err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	ver := fmt.Sprintf("v0.0.0-%s-%s", stamp.UTC().Format("20060102150405"), revision)
	if includeDirty && vcs["modified"] == "true" {
		ver += "+dirty"
	}
	return ver
}
