package system

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/blake3"
)

// DiagnosticTest определяет тип проверки
type DiagnosticTest string

const (
	TestPath    DiagnosticTest = "path"
	TestSpace   DiagnosticTest = "space"
	TestWrite   DiagnosticTest = "write"
	TestLock    DiagnosticTest = "lock"
	TestEntropy DiagnosticTest = "entropy"
)

const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// размер пробной записи
const sampleSize = 64 << 10

// DiagnosticResult содержит результат одной проверки
type DiagnosticResult struct {
	Test      DiagnosticTest    `json:"test"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// DiagnosticSummary содержит сводку результатов
type DiagnosticSummary struct {
	TotalTests int `json:"total_tests"`
	Passed     int `json:"passed"`
	Failed     int `json:"failed"`
	Warnings   int `json:"warnings"`
}

// VolumeDiagnostics is the full pre-flight report for one volume.
type VolumeDiagnostics struct {
	Volume    string             `json:"volume"`
	OS        string             `json:"os"`
	Arch      string             `json:"arch"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Duration  time.Duration      `json:"duration"`
	Overall   string             `json:"overall"` // HEALTHY, WARNING, CRITICAL
	Results   []DiagnosticResult `json:"results"`
	Summary   DiagnosticSummary  `json:"summary"`
}

// DiagnosticsRunner checks that a volume can be wiped without touching its
// free space beyond one small sample file.
type DiagnosticsRunner struct {
	volume  string
	lockDir string
	entropy io.Reader
}

func NewDiagnosticsRunner(volume, lockDir string) *DiagnosticsRunner {
	return &DiagnosticsRunner{volume: volume, lockDir: lockDir, entropy: rand.Reader}
}

// Run executes every check in order. Later checks are skipped once the path
// check fails, since they all need the volume.
func (dr *DiagnosticsRunner) Run(ctx context.Context) (*VolumeDiagnostics, error) {
	diag := &VolumeDiagnostics{
		Volume:    dr.volume,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		StartTime: time.Now(),
	}

	tests := []DiagnosticTest{TestPath, TestSpace, TestWrite, TestLock, TestEntropy}
	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return diag, err
		}

		result := dr.runTest(test)
		diag.Results = append(diag.Results, result)
		if test == TestPath && result.Status == StatusFail {
			break
		}
	}

	diag.EndTime = time.Now()
	diag.Duration = diag.EndTime.Sub(diag.StartTime)
	diag.Summary = summarize(diag.Results)
	diag.Overall = overallStatus(diag.Summary)

	return diag, nil
}

func (dr *DiagnosticsRunner) runTest(test DiagnosticTest) DiagnosticResult {
	startTime := time.Now()
	result := DiagnosticResult{Test: test, Timestamp: startTime}

	switch test {
	case TestPath:
		result.Status, result.Message, result.Details = dr.testPath()
	case TestSpace:
		result.Status, result.Message, result.Details = dr.testSpace()
	case TestWrite:
		result.Status, result.Message, result.Details = dr.testWrite()
	case TestLock:
		result.Status, result.Message, result.Details = dr.testLock()
	case TestEntropy:
		result.Status, result.Message, result.Details = dr.testEntropy()
	}

	result.Duration = time.Since(startTime)
	return result
}

func (dr *DiagnosticsRunner) testPath() (string, string, map[string]string) {
	abs, err := ValidatePath(dr.volume)
	if err != nil {
		return StatusFail, err.Error(), nil
	}
	dr.volume = abs
	return StatusPass, "Том доступен", map[string]string{"path": abs}
}

func (dr *DiagnosticsRunner) testSpace() (string, string, map[string]string) {
	info, err := GetDiskInfoForPath(dr.volume)
	if err != nil {
		return StatusFail, err.Error(), nil
	}
	details := map[string]string{
		"total": fmt.Sprint(info.TotalSize),
		"free":  fmt.Sprint(info.FreeSize),
	}
	if info.FreeSize == 0 {
		return StatusWarn, "Нет свободного места, затирать нечего", details
	}
	return StatusPass, "Свободное место определено", details
}

// testWrite пишет пробный файл и сверяет blake3 записанного и прочитанного
func (dr *DiagnosticsRunner) testWrite() (string, string, map[string]string) {
	sample := make([]byte, sampleSize)
	if _, err := io.ReadFull(dr.entropy, sample); err != nil {
		return StatusFail, errors.Wrap(err, "generate sample").Error(), nil
	}
	want := blake3.Sum256(sample)

	f, err := os.CreateTemp(dr.volume, ".drivewiper_diag_*")
	if err != nil {
		if IsDiskFullError(err) {
			return StatusWarn, "Том заполнен, пробная запись невозможна", nil
		}
		return StatusFail, errors.Wrap(err, "create sample file").Error(), nil
	}
	name := f.Name()
	defer os.Remove(name)

	_, werr := f.Write(sample)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		if IsDiskFullError(werr) {
			return StatusWarn, "Том заполнен во время пробной записи", nil
		}
		return StatusFail, errors.Wrap(werr, "write sample file").Error(), nil
	}

	readBack, err := os.ReadFile(name)
	if err != nil {
		return StatusFail, errors.Wrap(err, "read sample file").Error(), nil
	}
	got := blake3.Sum256(readBack)
	details := map[string]string{"bytes": fmt.Sprint(len(readBack))}
	if !bytes.Equal(want[:], got[:]) {
		return StatusFail, "Прочитанные данные отличаются от записанных", details
	}
	return StatusPass, "Пробная запись прошла успешно", details
}

func (dr *DiagnosticsRunner) testLock() (string, string, map[string]string) {
	details := map[string]string{"lock_file": LockPath(dr.lockDir, dr.volume)}
	lock, err := AcquireVolumeLock(dr.lockDir, dr.volume)
	if errors.Is(err, ErrVolumeLocked) {
		return StatusWarn, "Том уже затирается другим процессом", details
	}
	if err != nil {
		return StatusFail, err.Error(), details
	}
	if err := lock.Release(); err != nil {
		return StatusWarn, errors.Wrap(err, "release lock").Error(), details
	}
	return StatusPass, "Блокировка тома доступна", details
}

func (dr *DiagnosticsRunner) testEntropy() (string, string, map[string]string) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(dr.entropy, buf); err != nil {
		return StatusFail, errors.Wrap(err, "read entropy").Error(), nil
	}
	return StatusPass, "Источник случайных данных доступен", nil
}

func summarize(results []DiagnosticResult) DiagnosticSummary {
	summary := DiagnosticSummary{TotalTests: len(results)}
	for _, result := range results {
		switch result.Status {
		case StatusPass:
			summary.Passed++
		case StatusFail:
			summary.Failed++
		case StatusWarn:
			summary.Warnings++
		}
	}
	return summary
}

func overallStatus(summary DiagnosticSummary) string {
	if summary.Failed > 0 {
		return "CRITICAL"
	}
	if summary.Warnings > 0 {
		return "WARNING"
	}
	return "HEALTHY"
}

// SaveDiagnostics сохраняет диагностику в JSON файл
func SaveDiagnostics(diag *VolumeDiagnostics, outputPath string) error {
	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal diagnostics")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write diagnostics")
	}
	return nil
}
