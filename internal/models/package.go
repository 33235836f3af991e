package models

import (
	"fmt"
	"strings"
)

// FileKind classifies a manifest entry.
type FileKind int

const (
	FileRegular FileKind = iota
	FileDir
	FileSymlink
	// FileGhost entries are owned by the package but not shipped in its payload.
	FileGhost
)

// FileEntry is one path of a package's file manifest.
type FileEntry struct {
	Kind       FileKind
	Digest     string
	LinkTarget string
}

// Fingerprint identifies the content of the entry. It is empty when the
// content is not known, which is the case for packages loaded from
// filelists.xml.
func (f FileEntry) Fingerprint() string {
	switch f.Kind {
	case FileSymlink:
		return "link:" + f.LinkTarget
	case FileDir:
		return "dir"
	default:
		return f.Digest
	}
}

// DigestAlgorithm names the hash that produced Digest, going by its hex
// length. It is empty when there is no digest.
func (f FileEntry) DigestAlgorithm() string {
	switch len(f.Digest) {
	case 0:
		return ""
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 56:
		return "sha224"
	case 64:
		return "sha256"
	case 96:
		return "sha384"
	case 128:
		return "sha512"
	default:
		return "unknown"
	}
}

// Comparable reports whether the fingerprints of f and o can be compared,
// which regular files only allow when both digests use the same algorithm.
func (f FileEntry) Comparable(o FileEntry) bool {
	if f.Kind != FileRegular || o.Kind != FileRegular {
		return true
	}
	return f.DigestAlgorithm() == o.DigestAlgorithm()
}

// Identity is the (name, arch, version) triple that makes two packages the
// same package. It is a plain value and safe to copy into problems.
type Identity struct {
	Name    string
	Arch    string
	Version Version
}

// NEVRA renders name-[epoch:]version-release.arch.
func (id Identity) NEVRA() string {
	return fmt.Sprintf("%s-%s.%s", id.Name, id.Version, id.Arch)
}

func (id Identity) String() string { return id.NEVRA() }

// MarshalText lets reports encode identities as NEVRA strings.
func (id Identity) MarshalText() ([]byte, error) { return []byte(id.NEVRA()), nil }

// Key returns a map key for the identity.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%d:%s:%s:%s", id.Name, id.Version.Epoch, id.Version.Version, id.Version.Release, id.Arch)
}

// Package is the metadata of one binary or source RPM.
//
// Packages are built once by a metadata source and must not be modified
// after they have been handed to a universe.
type Package struct {
	Name    string
	Arch    string
	Version Version
	Source  bool

	Provides  []Capability
	Requires  []Capability
	Conflicts []Capability
	Obsoletes []Capability

	// Files maps absolute paths to their manifest entries.
	Files map[string]FileEntry

	// Repo names the repository the package was loaded from; empty for
	// candidates read from local files.
	Repo string
	// Location is the package file, relative to the repository base URL
	// for repository packages or a local path for candidates.
	Location string
	// Checksum is the checksum of the package file, if known.
	Checksum string
}

// Identity returns the package's (name, arch, version) triple.
func (p *Package) Identity() Identity {
	return Identity{Name: p.Name, Arch: p.Arch, Version: p.Version}
}

// NEVRA renders name-[epoch:]version-release.arch.
func (p *Package) NEVRA() string { return p.Identity().NEVRA() }

func (p *Package) String() string { return p.NEVRA() }

// SelfProvide is the implicit "name = evr" capability every package provides.
func (p *Package) SelfProvide() Capability {
	return Capability{Name: p.Name, Op: OpEQ, Version: p.Version}
}

// Same reports whether two packages share name, arch and version.
func (p *Package) Same(o *Package) bool {
	return p.Name == o.Name && p.Arch == o.Arch && p.Version.Compare(o.Version) == 0
}

// ProvidesCapability reports whether the package satisfies a simple
// capability through its explicit provides, its self-provide or, for file
// capabilities, its manifest.
func (p *Package) ProvidesCapability(c Capability) bool {
	if c.Rich != nil {
		return false
	}
	if c.IsFile() {
		if _, ok := p.Files[c.Name]; ok {
			return true
		}
	}
	if c.Matches(p.SelfProvide()) {
		return true
	}
	for _, prov := range p.Provides {
		if c.Matches(prov) {
			return true
		}
	}
	return false
}

// MatchingProvide returns the first provide of p with the capability's
// name, matching or not, so diagnostics can show what p offers instead.
func (p *Package) MatchingProvide(name string) (Capability, bool) {
	if p.Name == name {
		return p.SelfProvide(), true
	}
	for _, prov := range p.Provides {
		if prov.Name == name {
			return prov, true
		}
	}
	return Capability{}, false
}

// ObsoletesPackage reports whether one of p's obsoletes matches o's name
// and version.
func (p *Package) ObsoletesPackage(o *Package) bool {
	self := o.SelfProvide()
	for _, obs := range p.Obsoletes {
		if obs.Matches(self) {
			return true
		}
	}
	return false
}

// ConflictsWithPackage reports whether one of p's conflicts is satisfied by o.
func (p *Package) ConflictsWithPackage(o *Package) bool {
	for _, c := range p.Conflicts {
		if o.ProvidesCapability(c) {
			return true
		}
	}
	return false
}

// IsRPMLibDependency reports whether a requirement is satisfied by rpm
// itself rather than by a package.
func IsRPMLibDependency(name string) bool {
	return strings.HasPrefix(name, "rpmlib(")
}
