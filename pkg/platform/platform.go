// Package platform normalizes operating system and architecture names as the
// connect server reports them, so package descriptors can be matched against
// the running host.
package platform

import (
	"runtime"
	"strings"
)

// Any is the wildcard accepted for both OS and architecture.
const Any = "any"

// Platform is an OS and architecture pair in Go naming.
type Platform struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// Current returns the platform this binary runs on.
func Current() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// String returns os/arch.
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Matches reports whether a package built for os and arch runs on p.
// Empty values and Any match everything.
func (p Platform) Matches(os, arch string) bool {
	return MatchOS(os, p.OS) && MatchArch(arch, p.Arch)
}

// MatchOS reports whether the package OS name want covers host OS have.
func MatchOS(want, have string) bool {
	want = NormalizeOS(want)
	return want == "" || want == Any || want == NormalizeOS(have)
}

// MatchArch reports whether the package architecture want covers host architecture have.
func MatchArch(want, arch string) bool {
	want = NormalizeArch(want)
	return want == "" || want == Any || want == NormalizeArch(arch)
}

// NormalizeOS maps server OS spellings onto GOOS values.
func NormalizeOS(os string) string {
	os = strings.ToLower(strings.TrimSpace(os))
	switch os {
	case "macos", "osx", "mac":
		return "darwin"
	case "win", "win32", "win64":
		return "windows"
	default:
		return os
	}
}

// NormalizeArch maps server architecture spellings onto GOARCH values.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch arch {
	case "x86_64", "x64":
		return "amd64"
	case "x86", "i386", "i686":
		return "386"
	case "aarch64", "armv8":
		return "arm64"
	case "armv7", "armhf":
		return "arm"
	default:
		return arch
	}
}
