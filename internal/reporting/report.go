package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"drivewiper/internal/config"
	"drivewiper/internal/wipe"
)

// Report представляет JSON отчёт о запуске
type Report struct {
	RunID           string                 `json:"run_id"`
	Version         string                 `json:"version"`
	Hostname        string                 `json:"hostname"`
	Timestamp       time.Time              `json:"timestamp"`
	Config          map[string]interface{} `json:"config"`
	Profile         string                 `json:"profile,omitempty"`
	Volume          string                 `json:"volume"`
	Rounds          int                    `json:"rounds"`
	RoundsCompleted int                    `json:"rounds_completed"`
	BytesWritten    uint64                 `json:"bytes_written"`
	FilesCreated    int                    `json:"files_created"`
	DeleteFailures  int                    `json:"delete_failures"`
	SpeedMBps       float64                `json:"speed_mbps"`
	Cancelled       bool                   `json:"cancelled"`
	Warnings        []string               `json:"warnings,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ExitCode        int                    `json:"exit_code"`
	Duration        string                 `json:"duration"`
}

// GenerateReport собирает отчёт по результату затирания. result может
// быть nil, если затирание не началось.
func GenerateReport(result *wipe.WipeResult, runErr error, cfg *config.Config, version, profile string, startTime, endTime time.Time, exitCode int) *Report {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	report := &Report{
		RunID:     fmt.Sprintf("run_%d", startTime.UnixNano()),
		Version:   version,
		Hostname:  hostname,
		Timestamp: startTime,
		Config:    configToMap(cfg),
		Profile:   profile,
		ExitCode:  exitCode,
		Duration:  endTime.Sub(startTime).String(),
	}

	if result != nil {
		report.Volume = result.Volume
		report.Rounds = result.Rounds
		report.RoundsCompleted = result.RoundsCompleted
		report.BytesWritten = result.BytesWritten
		report.FilesCreated = result.FilesCreated
		report.DeleteFailures = result.DeleteFailures
		report.SpeedMBps = result.SpeedMBps
		report.Cancelled = result.Cancelled
		report.Warnings = result.Warnings
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	return report
}

// SaveReport сохраняет отчёт в JSON файл и возвращает его путь.
// При выключенной отчётности ничего не делает.
func SaveReport(report *Report, cfg *config.Config) (string, error) {
	if !cfg.Reporting.Enabled {
		return "", nil
	}

	if err := os.MkdirAll(cfg.Reporting.LocalPath, 0755); err != nil {
		return "", errors.Wrap(err, "create report directory")
	}

	filename := fmt.Sprintf("drivewiper_report_%s.json", report.Timestamp.Format("20060102_150405"))
	path := filepath.Join(cfg.Reporting.LocalPath, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal report")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "write report")
	}

	return path, nil
}

// configToMap преобразует Config в map для JSON сериализации
func configToMap(cfg *config.Config) map[string]interface{} {
	if cfg == nil {
		return nil
	}
	return map[string]interface{}{
		"security": map[string]interface{}{
			"require_confirmation": cfg.Security.RequireConfirmation,
			"excluded_paths":       cfg.Security.ExcludedPaths,
		},
		"wipe": map[string]interface{}{
			"rounds":          cfg.Wipe.Rounds,
			"max_file_size":   cfg.Wipe.MaxFileSize,
			"block_size":      cfg.Wipe.BlockSize,
			"filename_length": cfg.Wipe.FilenameLength,
			"max_speed_mbps":  cfg.Wipe.MaxSpeedMBps,
			"unit":            cfg.Wipe.Unit,
		},
		"logging": map[string]interface{}{
			"level": cfg.Logging.Level,
			"file":  cfg.Logging.File,
		},
		"metrics": map[string]interface{}{
			"enabled": cfg.Metrics.Enabled,
			"addr":    cfg.Metrics.Addr,
		},
	}
}
