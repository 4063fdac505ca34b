package wipe

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

const minThrottleBurst = 64 * 1024

// NewLimiter returns a byte-rate limiter for maxSpeedMBps, or nil when
// the speed is not limited.
func NewLimiter(maxSpeedMBps float64) *rate.Limiter {
	if maxSpeedMBps <= 0 {
		return nil
	}
	bytesPerSec := maxSpeedMBps * 1024 * 1024
	burst := minThrottleBurst
	if bytesPerSec > float64(burst) {
		burst = int(math.Min(bytesPerSec, math.MaxInt32))
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// ThrottledWriter ограничивает скорость записи через token bucket.
// Блок больше burst режется на части, иначе WaitN сразу вернет ошибку.
type ThrottledWriter struct {
	ctx     context.Context
	file    WritableFile
	limiter *rate.Limiter
}

func NewThrottledWriter(ctx context.Context, file WritableFile, limiter *rate.Limiter) *ThrottledWriter {
	return &ThrottledWriter{ctx: ctx, file: file, limiter: limiter}
}

// Write ждет токены и пишет. Отмена контекста прерывает ожидание.
func (tw *ThrottledWriter) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return tw.file.Write(data)
	}

	burst := tw.limiter.Burst()
	written := 0
	for written < len(data) {
		n := min(len(data)-written, burst)
		if err := tw.limiter.WaitN(tw.ctx, n); err != nil {
			return written, err
		}
		m, err := tw.file.Write(data[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (tw *ThrottledWriter) Close() error {
	return tw.file.Close()
}
