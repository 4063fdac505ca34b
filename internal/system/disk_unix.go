//go:build linux || darwin || freebsd

package system

import (
	"golang.org/x/sys/unix"
)

// GetFreeSpace returns free bytes available to an unprivileged caller
// (Bavail), which is the limit ENOSPC is raised against.
func GetFreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, volumeUnavailable(err, path)
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}

// GetDiskInfoForPath returns size information for the filesystem holding path
func GetDiskInfoForPath(path string) (*DiskInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return nil, volumeUnavailable(err, path)
	}

	total := uint64(stat.Blocks) * uint64(stat.Bsize)
	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	used := total - uint64(stat.Bfree)*uint64(stat.Bsize)

	return &DiskInfo{
		Path:       path,
		TotalSize:  total,
		FreeSize:   free,
		UsedSize:   used,
		IsWritable: CheckWriteAccess(path),
	}, nil
}
