package system

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/blake3"
)

// ErrVolumeLocked is returned when another process is already wiping the volume.
var ErrVolumeLocked = errors.New("volume is already being wiped")

// VolumeLock is a single-instance lock per volume. The lock file lives in
// lockDir, never on the volume itself, so it does not take part in the wipe.
// Keep the lock alive by keeping the file descriptor open.
type VolumeLock struct {
	path string
	f    *os.File
}

// LockPath returns the lock file path for volume inside lockDir.
func LockPath(lockDir, volume string) string {
	sum := blake3.Sum256([]byte(filepath.Clean(volume)))
	return filepath.Join(lockDir, "drivewiper-"+hex.EncodeToString(sum[:8])+".lock")
}

// AcquireVolumeLock takes an exclusive non-blocking lock for volume and
// writes the current PID into the lock file.
func AcquireVolumeLock(lockDir, volume string) (*VolumeLock, error) {
	if volume == "" {
		return nil, errors.New("volume path is empty")
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create lock directory")
	}

	lockPath := LockPath(lockDir, volume)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		if isLockHeld(err) {
			return nil, errors.Mark(errors.Wrapf(err, "acquire lock %s", lockPath), ErrVolumeLocked)
		}
		return nil, errors.Wrapf(err, "acquire lock %s", lockPath)
	}

	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, errors.Wrap(err, "truncate lock file")
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, errors.Wrap(err, "write pid")
	}

	return &VolumeLock{path: lockPath, f: f}, nil
}

func (l *VolumeLock) Path() string { return l.path }

// Release unlocks the lock file. Safe to call more than once.
func (l *VolumeLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unlockFile(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
