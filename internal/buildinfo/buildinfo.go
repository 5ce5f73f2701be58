package buildinfo

import (
	"runtime/debug"
)

const length = 7

// Info describes the running binary
type Info struct {
	Revision  string `json:"revision"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"goVersion"`
}

// Revision returns the short vcs revision of the current build, empty when unknown
func Revision() (rev string) {
	rev = get("vcs.revision")
	if len(rev) > length {
		rev = rev[:length]
	}
	return
}

// Get returns the build information of the running binary
func Get() Info {
	info := Info{Revision: Revision(), Modified: get("vcs.modified") == "true"}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
	}
	return info
}

func get(key string) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return ""
}
