package wipe

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"drivewiper/internal/logging"
	"drivewiper/internal/system"
)

// maxStalledFiles подряд созданных файлов без единого записанного байта
// завершают раунд: место резервное или под квотой, писать туда нельзя.
const maxStalledFiles = 3

// WipeSession заполняет свободное место тома в пределах одного раунда
type WipeSession struct {
	Volume       string
	Round        int
	FilesCreated int
	BytesWritten uint64
	Warnings     []string

	cfg      WipeConfig
	probe    FreeSpaceProbe
	alloc    *TempFileAllocator
	source   *RandomBlockSource
	limiter  *rate.Limiter
	recorder Recorder
	logger   *logging.EnterpriseLogger
}

// Execute runs the fill loop starting from free bytes measured at round
// start. It returns nil when the volume is full; an error means the round
// was aborted (volume unavailable, name space exhausted, cancelled).
// Files stay tracked by the allocator; the caller sweeps them.
func (ws *WipeSession) Execute(ctx context.Context, free uint64) error {
	stalled := 0

	for free > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := min(free, ws.cfg.MaxFileSize)

		f, err := ws.alloc.Create()
		if err != nil {
			if errors.Is(err, ErrVolumeFull) {
				ws.logger.Log("DEBUG", "Нет места для нового файла", "volume", ws.Volume, "round", ws.Round)
				return nil
			}
			return err
		}
		ws.FilesCreated++
		ws.recorder.FileCreated()
		if ws.limiter != nil {
			f.file = NewThrottledWriter(ctx, f.file, ws.limiter)
		}

		writeErr := ws.fillFile(ctx, f, chunk)
		if err := ws.alloc.Close(f); err != nil {
			ws.logger.Log("WARN", "Ошибка закрытия файла", "file", f.Path, "error", err.Error())
		}
		if writeErr != nil {
			return writeErr
		}

		if f.Written() == 0 {
			stalled++
			if stalled >= maxStalledFiles {
				msg := fmt.Sprintf("round %d: volume reports %d free bytes but accepts no writes", ws.Round, free)
				ws.Warnings = append(ws.Warnings, msg)
				ws.logger.Log("WARN", "Свободное место не уменьшается", "volume", ws.Volume, "round", ws.Round, "free", free)
				return nil
			}
		} else {
			stalled = 0
		}

		free, err = ws.probe.FreeBytes(ws.Volume)
		if err != nil {
			return errors.Mark(err, system.ErrVolumeUnavailable)
		}
	}

	return nil
}

// fillFile пишет chunk байт: полные блоки, пока остаток строго больше
// блока, затем один блок-остаток.
func (ws *WipeSession) fillFile(ctx context.Context, f *TrackedFile, chunk uint64) error {
	block := uint64(ws.cfg.BlockSize)
	remaining := chunk

	for remaining > block {
		done, err := ws.writeBlock(ctx, f, int(block))
		if err != nil || done {
			return err
		}
		remaining -= block
	}

	_, err := ws.writeBlock(ctx, f, int(remaining))
	return err
}

// writeBlock reports done when the file should not receive more data.
func (ws *WipeSession) writeBlock(ctx context.Context, f *TrackedFile, n int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}

	buf, err := ws.source.NextBlock(n)
	if err != nil {
		return true, err
	}
	defer PutBuffer(buf)

	res := ws.alloc.Write(f, buf)
	if res.N > 0 {
		ws.BytesWritten += uint64(res.N)
		ws.recorder.BytesWritten(res.N)
	}

	switch res.Outcome {
	case OutcomeWritten:
		return false, nil
	case OutcomeExhausted:
		ws.recorder.WriteExhausted()
		ws.logger.Log("DEBUG", "Место на томе исчерпано", "file", f.Path, "written", f.Written())
		return true, nil
	default:
		if err := ctx.Err(); err != nil {
			return true, err
		}
		ws.logger.Log("WARN", "Ошибка записи", "file", f.Path, "error", res.Err.Error())
		return true, nil
	}
}

// Cleanup удаляет все временные файлы сессии
func (ws *WipeSession) Cleanup() (int, error) {
	removed, err := ws.alloc.RemoveAll()
	if err != nil {
		ws.logger.Log("WARN", "Не все временные файлы удалены", "volume", ws.Volume, "round", ws.Round, "failed", DeleteFailures(err), "error", err.Error())
	}
	return removed, err
}
