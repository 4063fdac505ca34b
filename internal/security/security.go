package security

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"drivewiper/internal/config"
	"drivewiper/internal/system"
)

// ErrVolumeExcluded is returned for volumes on the configured exclusion list.
var ErrVolumeExcluded = errors.New("volume is excluded by configuration")

// CheckVolume проверяет том перед затиранием: существует, это каталог,
// в него можно писать и он не исключён конфигурацией.
// Возвращает абсолютный путь тома.
func CheckVolume(cfg *config.Config, volume string) (string, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	absPath, err := system.ValidatePath(volume)
	if err != nil {
		return "", err
	}

	if IsExcluded(cfg, absPath) {
		return "", errors.Wrapf(ErrVolumeExcluded, "%s", absPath)
	}

	if !system.CheckWriteAccess(absPath) {
		return "", errors.Mark(errors.Newf("volume %s is not writable", absPath), system.ErrVolumeUnavailable)
	}

	return absPath, nil
}

// IsExcluded сообщает, совпадает ли путь с исключённым или лежит внутри него
func IsExcluded(cfg *config.Config, path string) bool {
	if cfg == nil {
		return false
	}

	path = filepath.Clean(path)
	for _, excluded := range cfg.Security.ExcludedPaths {
		excluded = filepath.Clean(excluded)
		if abs, err := filepath.Abs(excluded); err == nil {
			excluded = abs
		}
		rel, err := filepath.Rel(excluded, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}

	return false
}
