package conda

import (
	"fmt"
	"strings"
)

// PackageRecord is a single installable candidate: one (name, version,
// build) artifact published by a channel. Records are immutable once
// constructed; the resolution engine only ever reads them.
type PackageRecord struct {
	// Name is the case-normalized package name.
	Name string `json:"name"`
	// Version is the parsed package version.
	Version Version `json:"version"`
	// Build is the build string distinguishing artifacts with the
	// same name and version.
	Build string `json:"build"`
	// BuildNumber is a secondary ordering key among builds.
	BuildNumber int `json:"build_number"`
	// Depends holds match specs, one per dependency.
	Depends []string `json:"depends,omitempty"`
	// Constrains holds match specs restricting other packages: if a
	// named package is selected it must satisfy the spec, so every
	// non-matching candidate of that name conflicts with this record.
	Constrains []string `json:"constrains,omitempty"`
	// TrackFeatures lists feature tags; candidates carrying fewer
	// tags are preferred during resolution.
	TrackFeatures []string `json:"track_features,omitempty"`
	// Channel is the origin namespace the record was published in.
	Channel string `json:"channel"`
	// Subdir is the platform subdirectory within the channel.
	Subdir string `json:"subdir,omitempty"`
	// SHA256 and MD5 identify the package contents.
	SHA256 string `json:"sha256,omitempty"`
	MD5    string `json:"md5,omitempty"`
	// Timestamp is the publication time in milliseconds since the
	// epoch, or zero when the channel metadata predates timestamps.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// RecordKey identifies a record within a candidate pool. Pools are
// deduplicated on this key.
type RecordKey struct {
	Name    string
	Version string
	Build   string
	Channel string
}

// Key returns the deduplication key for r.
func (r *PackageRecord) Key() RecordKey {
	return RecordKey{
		Name:    r.Name,
		Version: r.Version.String(),
		Build:   r.Build,
		Channel: r.Channel,
	}
}

// ID returns a stable human-readable identity for r, unique within a
// deduplicated pool.
func (r *PackageRecord) ID() string {
	return fmt.Sprintf("%s=%s=%s@%s", r.Name, r.Version, r.Build, r.Channel)
}

func (r *PackageRecord) String() string {
	return fmt.Sprintf("%s-%s-%s", r.Name, r.Version, r.Build)
}

// NormalizeName lowercases a package name. Names are matched
// case-insensitively throughout.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameContent reports whether a and b denote the same artifact:
// identical key and, when both carry a checksum, identical content
// identity.
func (r *PackageRecord) SameContent(o *PackageRecord) bool {
	if r.Key() != o.Key() {
		return false
	}
	if r.SHA256 != "" && o.SHA256 != "" {
		return r.SHA256 == o.SHA256
	}
	return true
}
