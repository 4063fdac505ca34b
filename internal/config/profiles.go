package config

import (
	"github.com/cockroachdb/errors"
)

// ApplyProfile применяет профиль производительности к конфигурации
func ApplyProfile(cfg *Config, profile string) error {
	switch profile {
	case "safe":
		cfg.Wipe.MaxSpeedMBps = 50
		cfg.Wipe.BlockSize = 1 * MiB
		cfg.Wipe.MaxFileSize = 256 * MiB
	case "balanced":
		defaults := Default()
		cfg.Wipe.MaxSpeedMBps = defaults.Wipe.MaxSpeedMBps
		cfg.Wipe.BlockSize = defaults.Wipe.BlockSize
		cfg.Wipe.MaxFileSize = defaults.Wipe.MaxFileSize
	case "fast":
		cfg.Wipe.MaxSpeedMBps = 0 // unlimited
		cfg.Wipe.BlockSize = 16 * MiB
		cfg.Wipe.MaxFileSize = 4 * GiB
	case "paranoid":
		cfg.Wipe.Rounds = 3
	default:
		return errors.Newf("unknown profile: %s", profile)
	}
	return nil
}

// Profiles перечисляет известные профили
func Profiles() []string {
	return []string{"safe", "balanced", "fast", "paranoid"}
}
