//go:build windows

package system

import (
	"golang.org/x/sys/windows"
)

// GetFreeSpace gets free space available to the caller via GetDiskFreeSpaceExW
func GetFreeSpace(path string) (uint64, error) {
	free, _, err := diskFreeSpace(path)
	return free, err
}

// GetDiskInfoForPath получает информацию о томе по пути
func GetDiskInfoForPath(path string) (*DiskInfo, error) {
	free, total, err := diskFreeSpace(path)
	if err != nil {
		return nil, err
	}

	return &DiskInfo{
		Path:       path,
		TotalSize:  total,
		FreeSize:   free,
		UsedSize:   total - free,
		IsWritable: CheckWriteAccess(path),
	}, nil
}

func diskFreeSpace(path string) (uint64, uint64, error) {
	drivePath, err := windows.UTF16PtrFromString(normalizePath(path))
	if err != nil {
		return 0, 0, volumeUnavailable(err, path)
	}

	var freeBytesAvailable, totalBytes, freeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(drivePath, &freeBytesAvailable, &totalBytes, &freeBytes); err != nil {
		return 0, 0, volumeUnavailable(err, path)
	}

	return freeBytesAvailable, totalBytes, nil
}

// normalizePath приводит "F" и "F:" к корню диска "F:\"
func normalizePath(path string) string {
	if len(path) == 1 {
		return path + ":\\"
	}
	if len(path) == 2 && path[1] == ':' {
		return path + "\\"
	}
	return path
}
