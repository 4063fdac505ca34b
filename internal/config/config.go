package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// SecuritySection ограничивает, какие тома можно затирать
type SecuritySection struct {
	RequireConfirmation bool     `yaml:"require_confirmation"`
	ExcludedPaths       []string `yaml:"excluded_paths"`
}

// WipeSection параметры движка затирания
type WipeSection struct {
	Rounds           int     `yaml:"rounds"`
	MaxFileSize      int64   `yaml:"max_file_size"`
	BlockSize        int64   `yaml:"block_size"`
	FilenameLength   int     `yaml:"filename_length"`
	MaxSpeedMBps     float64 `yaml:"max_speed_mbps"`
	Unit             string  `yaml:"unit"`
	StatusIntervalMs int     `yaml:"status_interval_ms"`
}

type LoggingSection struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ReportingSection struct {
	Enabled   bool   `yaml:"enabled"`
	LocalPath string `yaml:"local_path"`
}

type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config конфигурация drivewiper
type Config struct {
	Security  SecuritySection  `yaml:"security"`
	Wipe      WipeSection      `yaml:"wipe"`
	Logging   LoggingSection   `yaml:"logging"`
	Reporting ReportingSection `yaml:"reporting"`
	Metrics   MetricsSection   `yaml:"metrics"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Security: SecuritySection{
			RequireConfirmation: true,
			ExcludedPaths:       []string{},
		},
		Wipe: WipeSection{
			Rounds:           1,
			MaxFileSize:      1 * GiB,
			BlockSize:        4 * MiB,
			FilenameLength:   12,
			MaxSpeedMBps:     0, // без ограничения
			Unit:             "m",
			StatusIntervalMs: 500,
		},
		Logging: LoggingSection{
			Level: "INFO",
			File:  "",
		},
		Reporting: ReportingSection{
			Enabled:   false,
			LocalPath: "./reports",
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    "127.0.0.1:9407",
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	normalize(config)

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return config, nil
}

// normalize приводит регистр: unit в нижний, level в верхний
func normalize(config *Config) {
	config.Wipe.Unit = strings.ToLower(strings.TrimSpace(config.Wipe.Unit))
	config.Logging.Level = strings.ToUpper(strings.TrimSpace(config.Logging.Level))
}

// Validate проверяет конфигурацию на валидность
func Validate(config *Config) error {
	if config.Wipe.Rounds <= 0 {
		return errors.Newf("rounds must be positive, got %d", config.Wipe.Rounds)
	}
	if config.Wipe.MaxFileSize <= 0 {
		return errors.Newf("max file size must be positive, got %d", config.Wipe.MaxFileSize)
	}
	if config.Wipe.BlockSize <= 0 {
		return errors.Newf("block size must be positive, got %d", config.Wipe.BlockSize)
	}
	// Блок держится в памяти целиком
	if config.Wipe.BlockSize > 1*GiB {
		return errors.Newf("block size too large (max 1GiB), got %d", config.Wipe.BlockSize)
	}

	// base64 от n байт даёт 4*ceil(n/3) символов, имя файла ограничено 255
	if config.Wipe.FilenameLength <= 0 || config.Wipe.FilenameLength > 189 {
		return errors.Newf("filename length must be between 1 and 189, got %d", config.Wipe.FilenameLength)
	}

	if config.Wipe.MaxSpeedMBps < 0 {
		return errors.Newf("max speed cannot be negative, got %f", config.Wipe.MaxSpeedMBps)
	}

	if config.Wipe.StatusIntervalMs <= 0 {
		return errors.Newf("status interval must be positive, got %d", config.Wipe.StatusIntervalMs)
	}

	validUnits := map[string]bool{"b": true, "k": true, "m": true, "g": true, "t": true}
	if !validUnits[strings.ToLower(strings.TrimSpace(config.Wipe.Unit))] {
		return errors.Newf("invalid unit: %s", config.Wipe.Unit)
	}

	validLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLevels[strings.ToUpper(strings.TrimSpace(config.Logging.Level))] {
		return errors.Newf("invalid log level: %s", config.Logging.Level)
	}

	if config.Metrics.Enabled && config.Metrics.Addr == "" {
		return errors.New("metrics enabled without listen address")
	}

	for _, path := range config.Security.ExcludedPaths {
		if path == "" {
			return errors.New("empty excluded path")
		}
	}

	return nil
}

// Save сохраняет конфигурацию в файл
func Save(config *Config, path string) error {
	if err := Validate(config); err != nil {
		return errors.Wrap(err, "cannot save invalid config")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// StatusInterval период обновления строки прогресса
func (config *Config) StatusInterval() time.Duration {
	return time.Duration(config.Wipe.StatusIntervalMs) * time.Millisecond
}
