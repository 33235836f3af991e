package models

// NoArch is the architecture of architecture-independent packages.
const NoArch = "noarch"

var compatibleArches = map[string][]string{
	"x86_64":  {"x86_64", "athlon", "i686", "i586", "i486", "i386"},
	"i686":    {"i686", "i586", "i486", "i386"},
	"i586":    {"i586", "i486", "i386"},
	"i386":    {"i386"},
	"aarch64": {"aarch64"},
	"armv7hl": {"armv7hl", "armv7l", "armv6l"},
	"ppc64le": {"ppc64le"},
	"ppc64":   {"ppc64", "ppc"},
	"s390x":   {"s390x", "s390"},
	"riscv64": {"riscv64"},
}

// ArchCompatible reports whether a package built for pkgArch can be
// installed on a system whose primary architecture is target. An empty
// target accepts everything.
func ArchCompatible(target, pkgArch string) bool {
	if target == "" || pkgArch == NoArch || target == pkgArch {
		return true
	}
	for _, a := range compatibleArches[target] {
		if a == pkgArch {
			return true
		}
	}
	return false
}

// SameArchFamily reports whether a package of arch b can satisfy a
// dependency of a package of arch a without crossing architectures.
// noarch is compatible with anything in both directions.
func SameArchFamily(a, b string) bool {
	return a == b || a == NoArch || b == NoArch
}

// IsMultilibPair reports whether two packages are the same package built
// for two architectures that may be installed side by side.
func IsMultilibPair(a, b *Package) bool {
	if a.Name != b.Name || a.Arch == b.Arch {
		return false
	}
	if a.Arch == NoArch || b.Arch == NoArch {
		return false
	}
	return ArchCompatible(a.Arch, b.Arch) || ArchCompatible(b.Arch, a.Arch)
}
