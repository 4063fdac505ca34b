package wipe

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"drivewiper/internal/logging"
	"drivewiper/internal/system"
)

const (
	DefaultMaxFileSize    = 1 << 30
	DefaultBlockSize      = 4 << 20
	DefaultFilenameLength = 12

	// base64 от 189 байт дает 252 символа, предел имени файла 255
	maxFilenameLength = 189
)

// ErrWipeInProgress is returned when Wipe is called on an engine that is
// already running.
var ErrWipeInProgress = errors.New("wipe already in progress")

// FreeSpaceProbe reports the bytes available for new data on a volume.
// Implementations must be safe for concurrent use.
type FreeSpaceProbe interface {
	FreeBytes(volume string) (uint64, error)
}

// WipeConfig параметры затирания одного тома
type WipeConfig struct {
	Volume         string
	MaxFileSize    uint64
	BlockSize      int
	FilenameLength int
	MaxSpeedMBps   float64
}

func DefaultWipeConfig(volume string) WipeConfig {
	return WipeConfig{
		Volume:         volume,
		MaxFileSize:    DefaultMaxFileSize,
		BlockSize:      DefaultBlockSize,
		FilenameLength: DefaultFilenameLength,
	}
}

func (c WipeConfig) Validate() error {
	if c.Volume == "" {
		return errors.New("volume path is empty")
	}
	if c.MaxFileSize == 0 {
		return errors.New("max file size must be positive")
	}
	if c.BlockSize <= 0 {
		return errors.Newf("block size must be positive, got %d", c.BlockSize)
	}
	if c.FilenameLength < 1 || c.FilenameLength > maxFilenameLength {
		return errors.Newf("filename length must be within 1..%d, got %d", maxFilenameLength, c.FilenameLength)
	}
	if c.MaxSpeedMBps < 0 {
		return errors.Newf("max speed must not be negative, got %g", c.MaxSpeedMBps)
	}
	return nil
}

// WipeEngine затирает свободное место одного тома раундами.
// Status можно читать из любой горутины во время Wipe.
type WipeEngine struct {
	cfg      WipeConfig
	probe    FreeSpaceProbe
	alloc    *TempFileAllocator
	source   *RandomBlockSource
	limiter  *rate.Limiter
	recorder Recorder
	logger   *logging.EnterpriseLogger

	status  atomic.Pointer[RoundStatus]
	running atomic.Bool
}

type Option func(*engineOptions)

type engineOptions struct {
	probe    FreeSpaceProbe
	fs       FileSystem
	recorder Recorder
}

// WithProbe replaces the OS free-space probe.
func WithProbe(p FreeSpaceProbe) Option {
	return func(o *engineOptions) { o.probe = p }
}

// WithFileSystem replaces the os-backed file operations.
func WithFileSystem(fs FileSystem) Option {
	return func(o *engineOptions) { o.fs = fs }
}

// WithRecorder attaches an event sink, e.g. metrics.
func WithRecorder(r Recorder) Option {
	return func(o *engineOptions) { o.recorder = r }
}

// NewWipeEngine creates an engine for cfg.Volume. A nil logger discards output.
func NewWipeEngine(cfg WipeConfig, logger *logging.EnterpriseLogger, opts ...Option) (*WipeEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid wipe config")
	}

	o := engineOptions{
		probe:    system.DiskProbe{},
		fs:       OSFileSystem(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	we := &WipeEngine{
		cfg:      cfg,
		probe:    o.probe,
		alloc:    NewTempFileAllocator(cfg.Volume, cfg.FilenameLength, o.fs),
		source:   NewRandomBlockSource(),
		limiter:  NewLimiter(cfg.MaxSpeedMBps),
		recorder: o.recorder,
		logger:   logger,
	}
	we.status.Store(&RoundStatus{})
	return we, nil
}

func (we *WipeEngine) Volume() string { return we.cfg.Volume }

// Status returns the snapshot published at the start of the current round.
// Before the first round it is the zero value.
func (we *WipeEngine) Status() RoundStatus {
	return *we.status.Load()
}

// FreeBytes queries the probe for the engine's volume.
func (we *WipeEngine) FreeBytes() (uint64, error) {
	return we.probe.FreeBytes(we.cfg.Volume)
}

// Close удаляет все оставшиеся временные файлы. Повторный вызов ничего не делает.
func (we *WipeEngine) Close() error {
	removed, err := we.alloc.RemoveAll()
	if removed > 0 || err != nil {
		we.recorder.FilesRemoved(removed, DeleteFailures(err))
	}
	return err
}

func (we *WipeEngine) newSession(round int) *WipeSession {
	return &WipeSession{
		Volume:   we.cfg.Volume,
		Round:    round,
		cfg:      we.cfg,
		probe:    we.probe,
		alloc:    we.alloc,
		source:   we.source,
		limiter:  we.limiter,
		recorder: we.recorder,
		logger:   we.logger,
	}
}
