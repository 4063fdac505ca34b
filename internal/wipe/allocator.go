package wipe

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"drivewiper/internal/system"
)

const maxNameAttempts = 32

var (
	// ErrVolumeFull is returned by Create when the volume cannot take even
	// an empty file. The fill loop treats it like an exhausted write.
	ErrVolumeFull = errors.New("no space left for a new file")
	// ErrNameCollision means every generated name was already taken.
	ErrNameCollision = errors.New("could not generate an unused file name")
)

// FileSystem is the subset of the os package the allocator needs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (WritableFile, error)
	Lstat(name string) (os.FileInfo, error)
	Remove(name string) error
}

type WritableFile interface {
	io.Writer
	io.Closer
}

type osFileSystem struct{}

func (osFileSystem) OpenFile(name string, flag int, perm os.FileMode) (WritableFile, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (osFileSystem) Lstat(name string) (os.FileInfo, error) { return os.Lstat(name) }

func (osFileSystem) Remove(name string) error { return os.Remove(name) }

// OSFileSystem returns the FileSystem backed by the real os package.
func OSFileSystem() FileSystem { return osFileSystem{} }

// TrackedFile открытый временный файл, созданный аллокатором
type TrackedFile struct {
	Path    string
	file    WritableFile
	written uint64
	closed  bool
}

// Written returns the bytes that reached the file so far.
func (f *TrackedFile) Written() uint64 { return f.written }

// TempFileAllocator создает временные файлы со случайными именами в корне
// тома и помнит их до RemoveAll.
type TempFileAllocator struct {
	volume     string
	nameLength int
	fs         FileSystem
	entropy    io.Reader

	mu    sync.Mutex
	files []*TrackedFile
}

func NewTempFileAllocator(volume string, nameLength int, fsys FileSystem) *TempFileAllocator {
	if fsys == nil {
		fsys = OSFileSystem()
	}
	return &TempFileAllocator{
		volume:     volume,
		nameLength: nameLength,
		fs:         fsys,
		entropy:    rand.Reader,
	}
}

// newName кодирует nameLength случайных байт в base64, '/' заменяется на '-'
func (a *TempFileAllocator) newName() (string, error) {
	raw := make([]byte, a.nameLength)
	if _, err := io.ReadFull(a.entropy, raw); err != nil {
		return "", errors.Wrap(err, "read name entropy")
	}
	name := base64.StdEncoding.EncodeToString(raw)
	return strings.ReplaceAll(name, "/", "-"), nil
}

// Create makes a new empty file with an unused random name directly under
// the volume root and starts tracking it. The file is opened with O_EXCL,
// so a name that appears between the existence check and the open is
// regenerated like any other collision.
func (a *TempFileAllocator) Create() (*TrackedFile, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name, err := a.newName()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(a.volume, name)

		if _, err := a.fs.Lstat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "stat %s", path), system.ErrVolumeUnavailable)
		}

		file, err := a.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrExist):
				continue
			case system.IsDiskFullError(err):
				return nil, errors.Mark(errors.Wrapf(err, "create %s", path), ErrVolumeFull)
			default:
				return nil, errors.Mark(errors.Wrapf(err, "create %s", path), system.ErrVolumeUnavailable)
			}
		}

		tracked := &TrackedFile{Path: path, file: file}
		a.mu.Lock()
		a.files = append(a.files, tracked)
		a.mu.Unlock()
		return tracked, nil
	}

	return nil, errors.Wrapf(ErrNameCollision, "%d attempts in %s", maxNameAttempts, a.volume)
}

// Write пишет блок целиком. Нехватка места возвращается как Exhausted,
// прочие ошибки как Failed; ни то ни другое не фатально для движка.
func (a *TempFileAllocator) Write(f *TrackedFile, data []byte) WriteResult {
	if f.closed {
		return Failed(0, errors.Newf("write to closed file %s", f.Path))
	}

	n, err := f.file.Write(data)
	if n > 0 {
		f.written += uint64(n)
	}
	switch {
	case err == nil:
		return Written(n)
	case system.IsDiskFullError(err):
		return Exhausted(n, err)
	default:
		return Failed(n, errors.Wrapf(err, "write %s", f.Path))
	}
}

// Close closes the handle. The file stays tracked for RemoveAll either way.
func (a *TempFileAllocator) Close(f *TrackedFile) error {
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.file.Close(); err != nil {
		return errors.Wrapf(err, "close %s", f.Path)
	}
	return nil
}

// RemoveAll deletes every tracked file, newest first. A failed delete does
// not stop the sweep; all failures come back as one multierror. The
// tracked set is empty afterwards, so a second call is a no-op.
func (a *TempFileAllocator) RemoveAll() (int, error) {
	a.mu.Lock()
	files := a.files
	a.files = nil
	a.mu.Unlock()

	var result *multierror.Error
	removed := 0
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		// Windows не удаляет открытые файлы
		if !f.closed {
			f.closed = true
			// ошибка закрытия не считается: результат определяет Remove
			_ = f.file.Close()
		}
		if err := a.fs.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", f.Path))
			continue
		}
		removed++
	}

	return removed, result.ErrorOrNil()
}

// Tracked returns the paths currently awaiting deletion.
func (a *TempFileAllocator) Tracked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	paths := make([]string, len(a.files))
	for i, f := range a.files {
		paths[i] = f.Path
	}
	return paths
}

// DeleteFailures counts the individual delete errors inside err.
func DeleteFailures(err error) int {
	if err == nil {
		return 0
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		return len(merr.Errors)
	}
	return 1
}
