//go:build linux || darwin || freebsd

package system

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

// IsDiskFullError reports whether err means the volume (or the caller's
// quota, or the maximum file size) has no room for more data.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EDQUOT) ||
		errors.Is(err, syscall.EFBIG)
}
