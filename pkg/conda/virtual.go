package conda

import (
	"runtime"
	"strings"
)

// VirtualPrefix marks synthetic records that represent host-platform
// facts rather than installable artifacts. Virtual packages take part
// in resolution like any other candidate but never appear in a
// transaction.
const VirtualPrefix = "__"

// IsVirtual reports whether r is a virtual package.
func (r *PackageRecord) IsVirtual() bool {
	return strings.HasPrefix(r.Name, VirtualPrefix)
}

// NewVirtualPackage constructs a virtual record for a platform fact.
// The version string defaults to "0" when empty.
func NewVirtualPackage(name, version, build string) *PackageRecord {
	if !strings.HasPrefix(name, VirtualPrefix) {
		name = VirtualPrefix + name
	}
	if version == "" {
		version = "0"
	}
	v, err := ParseVersion(version)
	if err != nil {
		v, _ = ParseVersion("0")
	}
	return &PackageRecord{
		Name:    NormalizeName(name),
		Version: v,
		Build:   build,
		Channel: "@virtual",
	}
}

// DetectVirtualPackages returns the virtual packages describing the
// current host: its operating system family and CPU architecture.
// Callers resolving for a foreign platform should construct their own
// set instead.
func DetectVirtualPackages() []*PackageRecord {
	var records []*PackageRecord
	switch runtime.GOOS {
	case "linux":
		records = append(records,
			NewVirtualPackage("__unix", "0", "0"),
			NewVirtualPackage("__linux", "0", "0"))
	case "darwin":
		records = append(records,
			NewVirtualPackage("__unix", "0", "0"),
			NewVirtualPackage("__osx", "0", "0"))
	case "windows":
		records = append(records, NewVirtualPackage("__win", "0", "0"))
	}
	records = append(records, NewVirtualPackage("__archspec", "1", runtime.GOARCH))
	return records
}
