package wire

import "github.com/blang/semver/v4"

// FormatVersion is the semantic version of this package's byte layout. It is
// never written into the 48-byte header itself (the spec fixes that layout
// exactly); it travels instead in the optional out-of-band run manifest
// (internal/manifest) so a restore tool can refuse, with a clear error
// instead of a FormatError deep in table parsing, to read diffs produced by
// an incompatible writer.
var FormatVersion = semver.MustParse("1.0.0")

// CompatibleWith reports whether a manifest recorded against producedBy can
// be read by this build: same major version, this build's minor/patch at
// least as new.
func CompatibleWith(producedBy semver.Version) bool {
	if FormatVersion.Major != producedBy.Major {
		return false
	}
	return !FormatVersion.LT(producedBy)
}
