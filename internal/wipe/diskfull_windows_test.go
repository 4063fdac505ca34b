//go:build windows

package wipe

import "drivewiper/internal/system"

var errDiskFull error = system.ERROR_DISK_FULL
