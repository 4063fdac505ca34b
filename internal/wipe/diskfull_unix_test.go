//go:build linux || darwin || freebsd

package wipe

import "syscall"

var errDiskFull error = syscall.ENOSPC
