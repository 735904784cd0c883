//go:build unix

package assetstore

import (
	"errors"
	"syscall"
)

// isNoSpace reports whether err indicates an out-of-space condition.
func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT)
}
