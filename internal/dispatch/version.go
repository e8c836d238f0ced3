package dispatch

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/mod/semver"
)

// ModuleVersion reports the version of a dependency linked into the binary.
// ok is false when build info is unavailable (tests, stripped builds).
func ModuleVersion(path string) (version string, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		return dep.Version, dep.Version != "" && dep.Version != "(devel)"
	}
	return "", false
}

// CheckVersion fails when the linked client library is older than min.
// Unknown versions pass.
func CheckVersion(path, min string) error {
	v, ok := ModuleVersion(path)
	if !ok {
		return nil
	}
	return compareVersion(path, v, min)
}

func compareVersion(path, have, min string) error {
	if !semver.IsValid(have) {
		return nil
	}
	if semver.Compare(have, min) < 0 {
		return fmt.Errorf("minimum version of %s is %s, linked is %s", path, min, have)
	}
	return nil
}
