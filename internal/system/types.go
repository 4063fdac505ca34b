package system

import (
	"github.com/cockroachdb/errors"
)

// ErrVolumeUnavailable помечает ошибки, при которых том недоступен целиком
// (не смонтирован, нет прав на каталог). Проверяется через errors.Is.
var ErrVolumeUnavailable = errors.New("volume unavailable")

// DiskInfo contains information about the filesystem holding a volume path
type DiskInfo struct {
	Path       string
	TotalSize  uint64
	FreeSize   uint64
	UsedSize   uint64
	IsWritable bool
}

// DiskProbe queries the OS for free space. It holds no state and is safe
// for concurrent use.
type DiskProbe struct{}

// FreeBytes returns the bytes available to this process on the filesystem
// containing volume.
func (DiskProbe) FreeBytes(volume string) (uint64, error) {
	return GetFreeSpace(volume)
}

func volumeUnavailable(err error, path string) error {
	return errors.Mark(errors.Wrapf(err, "free space query for %s", path), ErrVolumeUnavailable)
}
