package wipe

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"drivewiper/internal/logging"
	"drivewiper/internal/system"
)

const mib = 1 << 20

func newTestEngine(t *testing.T, mem *memFS, maxFile uint64, block int, rec Recorder) *WipeEngine {
	t.Helper()
	cfg := WipeConfig{
		Volume:         "/vol",
		MaxFileSize:    maxFile,
		BlockSize:      block,
		FilenameLength: DefaultFilenameLength,
	}
	opts := []Option{WithProbe(mem), WithFileSystem(mem)}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	we, err := NewWipeEngine(cfg, nil, opts...)
	require.NoError(t, err)
	return we
}

func TestWipeSingleRound(t *testing.T) {
	mem := newMemFS(10 * mib)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 4*mib, 4*mib, rec)

	var seen []RoundStatus
	rec.onWrite = func() { seen = append(seen, we.Status()) }

	res, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RoundsCompleted)
	assert.Equal(t, uint64(10*mib), res.BytesWritten)
	assert.Equal(t, 3, res.FilesCreated)
	assert.Zero(t, res.DeleteFailures)
	assert.False(t, res.Cancelled)

	require.NotEmpty(t, seen)
	want := RoundStatus{CurrentRound: 1, TotalRounds: 1, TotalSpaceAtRoundStart: 10 * mib}
	for _, s := range seen {
		assert.Equal(t, want, s)
	}
	assert.Equal(t, want, we.Status())

	// everything swept
	assert.Zero(t, mem.fileCount())
	assert.Len(t, mem.removed, 3)
	assert.Equal(t, 3, rec.removed)
	free, err := we.FreeBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(10*mib), free)
}

func TestWipeFileSizes(t *testing.T) {
	mem := newMemFS(10 * mib)
	we := newTestEngine(t, mem, 4*mib, 4*mib, nil)

	sizes := map[string]uint64{}
	mem.removeErr = func(path string) error {
		sizes[path] = mem.files[path].size
		return nil
	}

	_, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	var got []uint64
	for _, p := range mem.created {
		got = append(got, sizes[p])
	}
	assert.Equal(t, []uint64{4 * mib, 4 * mib, 2 * mib}, got)
}

func TestWipeMultipleRounds(t *testing.T) {
	mem := newMemFS(10 * mib)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 4*mib, 4*mib, rec)

	res, err := we.Wipe(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, []RoundStatus{
		{CurrentRound: 1, TotalRounds: 2, TotalSpaceAtRoundStart: 10 * mib},
		{CurrentRound: 2, TotalRounds: 2, TotalSpaceAtRoundStart: 10 * mib},
	}, rec.rounds)
	assert.Equal(t, []int{1, 2}, rec.finished)
	assert.Equal(t, 2, res.RoundsCompleted)
	assert.Equal(t, uint64(20*mib), res.BytesWritten)
	assert.Equal(t, 6, res.FilesCreated)
	assert.Equal(t, 20*mib, rec.bytes)
	assert.Zero(t, mem.fileCount())
}

func TestWipeRoundsAreIsolated(t *testing.T) {
	mem := newMemFS(8 * mib)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 4*mib, mib, rec)

	// round 2 must start with round 1's files already gone
	rec.onWrite = func() {
		s := we.Status()
		if s.CurrentRound == 2 {
			assert.Equal(t, uint64(8*mib), s.TotalSpaceAtRoundStart)
		}
	}

	_, err := we.Wipe(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, rec.rounds, 3)
	for _, s := range rec.rounds {
		assert.Equal(t, uint64(8*mib), s.TotalSpaceAtRoundStart)
	}
}

func TestWipeZeroFreeSpace(t *testing.T) {
	mem := newMemFS(0)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 4*mib, 4*mib, rec)

	res, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RoundsCompleted)
	assert.Zero(t, res.FilesCreated)
	assert.Empty(t, mem.created)
	assert.Equal(t, RoundStatus{CurrentRound: 1, TotalRounds: 1}, we.Status())
}

func TestWipeRejectsBadRounds(t *testing.T) {
	we := newTestEngine(t, newMemFS(mib), mib, mib, nil)
	_, err := we.Wipe(context.Background(), 0)
	assert.Error(t, err)
	assert.Equal(t, RoundStatus{}, we.Status())
}

func TestWipeVolumeUnavailableAtStart(t *testing.T) {
	mem := newMemFS(10 * mib)
	cfg := DefaultWipeConfig("/vol")
	we, err := NewWipeEngine(cfg, nil,
		WithProbe(failingProbe{err: os.ErrNotExist}),
		WithFileSystem(mem))
	require.NoError(t, err)

	res, err := we.Wipe(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, system.ErrVolumeUnavailable))
	assert.Zero(t, res.RoundsCompleted)
	assert.Empty(t, mem.created)
}

func TestWipeVolumeUnavailableMidRound(t *testing.T) {
	mem := newMemFS(10 * mib)
	// first probe measures the round, the second (after file one) fails
	mem.probeErr = func(calls int) error {
		if calls >= 2 {
			return errors.New("device removed")
		}
		return nil
	}
	we := newTestEngine(t, mem, 4*mib, 4*mib, nil)

	res, err := we.Wipe(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, system.ErrVolumeUnavailable))
	assert.Equal(t, 1, res.FilesCreated)
	assert.Zero(t, mem.fileCount(), "partial round must be swept")
}

func TestWipeAbsorbsDiskFull(t *testing.T) {
	mem := newMemFS(10 * mib)
	mem.slack = mib
	rec := &recordingRecorder{}

	core, logs := observer.New(zapcore.DebugLevel)
	cfg := WipeConfig{Volume: "/vol", MaxFileSize: 4 * mib, BlockSize: 4 * mib, FilenameLength: 12}
	we, err := NewWipeEngine(cfg, logging.NewWithCore(core),
		WithProbe(mem), WithFileSystem(mem), WithRecorder(rec))
	require.NoError(t, err)

	res, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(10*mib), res.BytesWritten)
	assert.GreaterOrEqual(t, rec.exhausted, 1)
	// two full files, one short file, then the stall guard
	assert.Equal(t, 2+1+maxStalledFiles, res.FilesCreated)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "accepts no writes")
	assert.Equal(t, 1, logs.FilterMessage("Свободное место не уменьшается").Len())
	assert.Zero(t, mem.fileCount())
}

func TestWipeEndsRoundWhenCreateHitsFullVolume(t *testing.T) {
	mem := newMemFS(10 * mib)
	mem.slack = mib
	mem.fullOnCreate = true

	cfg := WipeConfig{Volume: "/vol", MaxFileSize: 4 * mib, BlockSize: 4 * mib, FilenameLength: 12}
	we, err := NewWipeEngine(cfg, nil, WithProbe(mem), WithFileSystem(mem))
	require.NoError(t, err)

	res, err := we.Wipe(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RoundsCompleted)
	// 4 + 4 + 2 MiB per round, then the next create finds the volume full
	assert.Equal(t, 6, res.FilesCreated)
	assert.Equal(t, uint64(20*mib), res.BytesWritten)
	assert.Empty(t, res.Warnings)
	assert.Zero(t, mem.fileCount())
}

func TestWipeReportsDeleteFailures(t *testing.T) {
	mem := newMemFS(10 * mib)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 4*mib, 4*mib, rec)

	var stuck string
	mem.removeErr = func(path string) error {
		if stuck == "" {
			stuck = path
		}
		if path == stuck {
			return os.ErrPermission
		}
		return nil
	}

	res, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.DeleteFailures)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], stuck)
	assert.Equal(t, 2, rec.removed)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, 1, mem.fileCount())
}

func TestWipeCancelSweepsFiles(t *testing.T) {
	mem := newMemFS(64 * mib)
	rec := &recordingRecorder{}
	we := newTestEngine(t, mem, 8*mib, mib, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var writes atomic.Int32
	rec.onWrite = func() {
		if writes.Add(1) == 3 {
			cancel()
		}
	}

	res, err := we.Wipe(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Cancelled)
	assert.Zero(t, res.RoundsCompleted)
	assert.Equal(t, uint64(3*mib), res.BytesWritten)
	assert.Zero(t, mem.fileCount())
	assert.Len(t, rec.rounds, 1)
}

func TestStatusConcurrentReads(t *testing.T) {
	mem := newMemFS(16 * mib)
	we := newTestEngine(t, mem, 2*mib, 512*1024, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	var bad atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := we.Status()
				if s == (RoundStatus{}) {
					continue
				}
				if s.TotalRounds != 3 || s.CurrentRound < 1 || s.CurrentRound > 3 || s.TotalSpaceAtRoundStart != 16*mib {
					bad.Add(1)
				}
			}
		}()
	}

	_, err := we.Wipe(context.Background(), 3)
	close(done)
	wg.Wait()
	require.NoError(t, err)
	assert.Zero(t, bad.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	mem := newMemFS(10 * mib)
	we := newTestEngine(t, mem, 4*mib, 4*mib, nil)

	// files created outside a round still get swept by Close
	_, err := we.alloc.Create()
	require.NoError(t, err)
	require.Equal(t, 1, mem.fileCount())

	require.NoError(t, we.Close())
	require.NoError(t, we.Close())
	assert.Zero(t, mem.fileCount())
}

func TestBlockSplit(t *testing.T) {
	tests := []struct {
		name  string
		chunk uint64
		want  []int
	}{
		{name: "full blocks and remainder", chunk: 10 * mib, want: []int{4 * mib, 4 * mib, 2 * mib}},
		{name: "exact multiple", chunk: 8 * mib, want: []int{4 * mib, 4 * mib}},
		{name: "smaller than block", chunk: 2 * mib, want: []int{2 * mib}},
		{name: "single block", chunk: 4 * mib, want: []int{4 * mib}},
		{name: "zero chunk", chunk: 0, want: []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMemFS(64 * mib)
			we := newTestEngine(t, mem, 16*mib, 4*mib, nil)
			session := we.newSession(1)

			f, err := we.alloc.Create()
			require.NoError(t, err)
			require.NoError(t, session.fillFile(context.Background(), f, tt.chunk))

			assert.Equal(t, tt.want, mem.writesOf(f.Path))
			assert.Equal(t, tt.chunk, f.Written())
		})
	}
}

func TestWipeOnRealFilesystem(t *testing.T) {
	dir := t.TempDir()
	probe := &dirProbe{dir: dir, limit: 3 * mib}
	cfg := WipeConfig{Volume: dir, MaxFileSize: mib, BlockSize: 256 * 1024, FilenameLength: 12}
	we, err := NewWipeEngine(cfg, nil, WithProbe(probe))
	require.NoError(t, err)

	rec := &recordingRecorder{}
	we.recorder = rec
	var names []string
	rec.onWrite = func() {
		names = we.alloc.Tracked()
	}

	res, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3*mib), res.BytesWritten)
	assert.Equal(t, 3, res.FilesCreated)

	require.Len(t, names, 3)
	for _, n := range names {
		assert.Equal(t, dir, filepath.Dir(n))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// dirProbe reports limit minus the bytes already stored in dir.
type dirProbe struct {
	dir   string
	limit uint64
}

func (p *dirProbe) FreeBytes(string) (uint64, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, err
	}
	var used uint64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		used += uint64(info.Size())
	}
	if used >= p.limit {
		return 0, nil
	}
	return p.limit - used, nil
}

func TestWipeConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WipeConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*WipeConfig) {}},
		{name: "no volume", mutate: func(c *WipeConfig) { c.Volume = "" }, wantErr: true},
		{name: "zero file size", mutate: func(c *WipeConfig) { c.MaxFileSize = 0 }, wantErr: true},
		{name: "zero block", mutate: func(c *WipeConfig) { c.BlockSize = 0 }, wantErr: true},
		{name: "empty name", mutate: func(c *WipeConfig) { c.FilenameLength = 0 }, wantErr: true},
		{name: "name too long", mutate: func(c *WipeConfig) { c.FilenameLength = 190 }, wantErr: true},
		{name: "negative speed", mutate: func(c *WipeConfig) { c.MaxSpeedMBps = -1 }, wantErr: true},
		{name: "throttled", mutate: func(c *WipeConfig) { c.MaxSpeedMBps = 25 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWipeConfig("/vol")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				_, nerr := NewWipeEngine(cfg, nil)
				assert.Error(t, nerr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRemovedInReverseOrder(t *testing.T) {
	mem := newMemFS(10 * mib)
	we := newTestEngine(t, mem, 4*mib, 4*mib, nil)

	_, err := we.Wipe(context.Background(), 1)
	require.NoError(t, err)

	reversed := slices.Clone(mem.created)
	slices.Reverse(reversed)
	assert.Equal(t, reversed, mem.removed)
}
