package wipe

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// memFS is an in-memory volume with a fixed capacity. It doubles as the
// free-space probe so free space shrinks as files grow.
type memFS struct {
	mu       sync.Mutex
	capacity uint64
	// slack is added to the reported free space to simulate a probe that
	// overestimates (reserved blocks, delayed accounting).
	slack     uint64
	files     map[string]*memFile
	created   []string
	removed   []string
	removeErr func(path string) error
	probeErr  func(calls int) error
	probes    int
	// fullOnCreate makes OpenFile fail with disk full once capacity is used up
	fullOnCreate bool
	closeErr     error
}

func newMemFS(capacity uint64) *memFS {
	return &memFS{capacity: capacity, files: make(map[string]*memFile)}
}

func (m *memFS) usedLocked() uint64 {
	var used uint64
	for _, f := range m.files {
		used += f.size
	}
	return used
}

func (m *memFS) FreeBytes(string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	if m.probeErr != nil {
		if err := m.probeErr(m.probes); err != nil {
			return 0, err
		}
	}
	return m.capacity - m.usedLocked() + m.slack, nil
}

func (m *memFS) OpenFile(name string, flag int, perm os.FileMode) (WritableFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok && flag&os.O_EXCL != 0 {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}
	if m.fullOnCreate && m.usedLocked() >= m.capacity {
		return nil, &fs.PathError{Op: "open", Path: name, Err: errDiskFull}
	}
	f := &memFile{fs: m, path: name}
	m.files[name] = f
	m.created = append(m.created, name)
	return f, nil
}

func (m *memFS) Lstat(name string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: fs.ErrNotExist}
	}
	return memInfo{name: filepath.Base(name), size: int64(f.size)}, nil
}

func (m *memFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		if err := m.removeErr(name); err != nil {
			return &fs.PathError{Op: "remove", Path: name, Err: err}
		}
	}
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	m.removed = append(m.removed, name)
	return nil
}

func (m *memFS) fileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func (m *memFS) writesOf(name string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[name]; ok {
		return append([]int(nil), f.writes...)
	}
	return nil
}

type memFile struct {
	fs     *memFS
	path   string
	size   uint64
	writes []int
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	free := f.fs.capacity - f.fs.usedLocked()
	if uint64(len(p)) > free {
		f.size += free
		return int(free), &fs.PathError{Op: "write", Path: f.path, Err: errDiskFull}
	}
	f.size += uint64(len(p))
	f.writes = append(f.writes, len(p))
	return len(p), nil
}

func (f *memFile) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.closed = true
	return f.fs.closeErr
}

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o600 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

type failingProbe struct{ err error }

func (p failingProbe) FreeBytes(string) (uint64, error) { return 0, p.err }

// recordingRecorder captures engine events. onWrite runs after every
// successful block write, outside the recorder lock.
type recordingRecorder struct {
	mu        sync.Mutex
	rounds    []RoundStatus
	finished  []int
	files     int
	bytes     int
	exhausted int
	removed   int
	failed    int
	onWrite   func()
}

func (r *recordingRecorder) RoundStarted(s RoundStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, s)
}

func (r *recordingRecorder) RoundFinished(round int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, round)
}

func (r *recordingRecorder) FileCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files++
}

func (r *recordingRecorder) BytesWritten(n int) {
	r.mu.Lock()
	r.bytes += n
	hook := r.onWrite
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *recordingRecorder) WriteExhausted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted++
}

func (r *recordingRecorder) FilesRemoved(removed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed += removed
	r.failed += failed
}

// fixedReader yields the same byte forever.
type fixedReader byte

func (b fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

// sequenceReader hands out one fixed byte per Read call, then repeats the last.
type sequenceReader struct {
	seq []byte
	i   int
}

func (s *sequenceReader) Read(p []byte) (int, error) {
	b := s.seq[min(s.i, len(s.seq)-1)]
	s.i++
	for i := range p {
		p[i] = b
	}
	return len(p), nil
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy source closed") }
