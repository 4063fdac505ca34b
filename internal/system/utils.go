package system

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// ValidatePath validates and normalizes a volume path
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}

	absPath, err := filepath.Abs(os.ExpandEnv(path))
	if err != nil {
		return "", errors.Wrap(err, "invalid path")
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "path %s", absPath), ErrVolumeUnavailable)
	}
	if !info.IsDir() {
		return "", errors.Newf("path is not a directory: %s", absPath)
	}

	return absPath, nil
}

// CheckWriteAccess checks that a file can be created and removed in dir
func CheckWriteAccess(dir string) bool {
	file, err := os.CreateTemp(dir, ".drivewiper_write_test")
	if err != nil {
		return false
	}

	name := file.Name()
	file.Close()
	os.Remove(name)

	return true
}
