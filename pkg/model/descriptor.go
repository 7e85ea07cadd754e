// Package model provides the domain objects exchanged with the connect server:
// package descriptors, subscription status, projects and registration payloads.
package model

import (
	"net/url"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/pkgconnect/pkg/platform"
	platformversion "github.com/glorpus-work/pkgconnect/pkg/version"
)

// Wildcards for OS and architecture matching.
const (
	AnyOS   = platform.Any
	AnyArch = platform.Any
)

// Dependency represents a dependency with a name and an optional version constraint.
type Dependency struct {
	Name              string `json:"name"`
	VersionConstraint string `json:"versionConstraint,omitempty"`
}

// PackageDescriptor describes a package offered by the connect server.
type PackageDescriptor struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Version       string       `json:"version"`
	Type          string       `json:"type"`
	Description   string       `json:"description,omitempty"`
	URL           string       `json:"url"`
	Checksum      string       `json:"checksum,omitempty"`
	Size          int64        `json:"size,omitempty"`
	OS            string       `json:"os,omitempty"`
	Arch          string       `json:"arch,omitempty"`
	PlatformRange string       `json:"platformRange,omitempty"`
	Dependencies  []Dependency `json:"dependencies,omitempty"`
}

// MatchOs checks if this package matches the given operating system.
// Server spellings such as macos or x86_64 are normalized first.
func (p *PackageDescriptor) MatchOs(os string) bool {
	return platform.MatchOS(p.OS, os)
}

// MatchArch checks if this package matches the given architecture.
func (p *PackageDescriptor) MatchArch(arch string) bool {
	return platform.MatchArch(p.Arch, arch)
}

// MatchVersion checks if this package's version satisfies the given constraint.
func (p *PackageDescriptor) MatchVersion(versionConstraint string) bool {
	constraint, err := version.NewConstraint(versionConstraint)
	if err != nil {
		return false
	}
	v := p.GetVersion()
	if v == nil {
		return false
	}
	return constraint.Check(v)
}

// GetVersion returns the parsed package version, or nil.
func (p *PackageDescriptor) GetVersion() *version.Version {
	v, err := version.NewVersion(p.Version)
	if err != nil {
		return nil
	}
	return v
}

// GetURL returns the parsed download location, which may be relative to the server base URL.
func (p *PackageDescriptor) GetURL() *url.URL {
	parsed, err := url.Parse(p.URL)
	if err != nil {
		return nil
	}
	return parsed
}

// SupportsPlatform reports whether the package can run on platform version v.
// A missing range supports every platform; an unparsable one supports none.
func (p *PackageDescriptor) SupportsPlatform(v platformversion.PlatformVersion) bool {
	if p.PlatformRange == "" {
		return true
	}
	r, err := platformversion.ParseRange(p.PlatformRange)
	if err != nil {
		return false
	}
	return r.Contains(v)
}
