//go:build !unix

package assetstore

// isNoSpace reports whether err indicates an out-of-space condition.
// Non-unix platforms have no portable errno for this, so all IO failures
// are reported as plain IO errors.
func isNoSpace(error) bool { return false }
