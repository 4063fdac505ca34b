package wipe

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"drivewiper/internal/system"
)

// Wipe fills the free space of the volume with random data and deletes the
// files again, rounds times. Every round re-measures the free space first.
//
// A returned error is either a cancelled context or the volume becoming
// unavailable; in both cases the files of the interrupted round are already
// deleted. Failed deletes are not errors: they are counted in
// WipeResult.DeleteFailures and listed in Warnings.
func (we *WipeEngine) Wipe(ctx context.Context, rounds int) (*WipeResult, error) {
	if rounds <= 0 {
		return nil, errors.Newf("rounds must be positive, got %d", rounds)
	}
	if !we.running.CompareAndSwap(false, true) {
		return nil, ErrWipeInProgress
	}
	defer we.running.Store(false)

	result := &WipeResult{Volume: we.cfg.Volume, Rounds: rounds}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if secs := result.Duration.Seconds(); secs > 0 {
			result.SpeedMBps = float64(result.BytesWritten) / (1024 * 1024) / secs
		}
	}()

	we.logger.Log("INFO", "Начало затирания", "volume", we.cfg.Volume, "rounds", rounds,
		"max_file_size", we.cfg.MaxFileSize, "block_size", we.cfg.BlockSize)

	for round := 1; round <= rounds; round++ {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			return result, errors.Wrapf(err, "before round %d", round)
		}

		free, err := we.probe.FreeBytes(we.cfg.Volume)
		if err != nil {
			return result, errors.Mark(errors.Wrapf(err, "round %d", round), system.ErrVolumeUnavailable)
		}

		status := &RoundStatus{
			CurrentRound:           round,
			TotalRounds:            rounds,
			TotalSpaceAtRoundStart: free,
		}
		we.status.Store(status)
		we.recorder.RoundStarted(*status)
		we.logger.Log("INFO", "Раунд начат", "volume", we.cfg.Volume, "round", round, "total", rounds, "free", free)

		if err := we.runRound(ctx, round, free, result); err != nil {
			return result, err
		}
		result.RoundsCompleted++
	}

	we.logger.Log("INFO", "Затирание завершено", "volume", we.cfg.Volume,
		"rounds", result.RoundsCompleted, "bytes", result.BytesWritten, "files", result.FilesCreated,
		"delete_failures", result.DeleteFailures)
	return result, nil
}

// runRound fills and sweeps once. The sweep runs on every exit path.
func (we *WipeEngine) runRound(ctx context.Context, round int, free uint64, result *WipeResult) error {
	session := we.newSession(round)
	roundStart := time.Now()

	defer func() {
		removed, err := session.Cleanup()
		failed := DeleteFailures(err)
		if err != nil {
			result.DeleteFailures += failed
			result.Warnings = append(result.Warnings, err.Error())
		}
		result.FilesCreated += session.FilesCreated
		result.BytesWritten += session.BytesWritten
		result.Warnings = append(result.Warnings, session.Warnings...)

		we.recorder.FilesRemoved(removed, failed)
		we.recorder.RoundFinished(round, time.Since(roundStart))
		we.logger.Log("INFO", "Раунд завершен", "volume", we.cfg.Volume, "round", round,
			"bytes", session.BytesWritten, "files", session.FilesCreated, "removed", removed,
			"duration", time.Since(roundStart).String())
	}()

	if free == 0 {
		return nil
	}

	if err := session.Execute(ctx, free); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Cancelled = true
			we.logger.Log("WARN", "Затирание отменено", "volume", we.cfg.Volume, "round", round)
			return errors.Wrapf(ctxErr, "round %d cancelled", round)
		}
		we.logger.Log("ERROR", "Раунд прерван", "volume", we.cfg.Volume, "round", round, "error", err.Error())
		return errors.Wrapf(err, "round %d", round)
	}
	return nil
}
