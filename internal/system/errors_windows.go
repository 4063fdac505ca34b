//go:build windows

package system

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

const (
	// Windows error codes
	ERROR_HANDLE_DISK_FULL = syscall.Errno(39)
	ERROR_DISK_FULL        = syscall.Errno(112)
)

// IsDiskFullError сообщает, что запись упёрлась в конец свободного места
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ERROR_DISK_FULL) || errors.Is(err, ERROR_HANDLE_DISK_FULL)
}
