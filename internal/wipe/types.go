package wipe

import (
	"fmt"
	"time"
)

// RoundStatus снимок состояния раунда. Заменяется целиком в начале
// каждого раунда, поэтому читатель видит либо старый, либо новый снимок.
type RoundStatus struct {
	CurrentRound           int
	TotalRounds            int
	TotalSpaceAtRoundStart uint64
}

// WriteOutcome итог записи одного блока
type WriteOutcome int

const (
	// OutcomeWritten блок записан целиком
	OutcomeWritten WriteOutcome = iota
	// OutcomeExhausted место на томе кончилось, это ожидаемый исход
	OutcomeExhausted
	// OutcomeFailed прочая ошибка записи
	OutcomeFailed
)

func (o WriteOutcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// WriteResult результат записи блока: сколько байт легло на диск и почему остановились
type WriteResult struct {
	Outcome WriteOutcome
	N       int
	Err     error
}

func Written(n int) WriteResult { return WriteResult{Outcome: OutcomeWritten, N: n} }

func Exhausted(n int, err error) WriteResult {
	return WriteResult{Outcome: OutcomeExhausted, N: n, Err: err}
}

func Failed(n int, err error) WriteResult {
	return WriteResult{Outcome: OutcomeFailed, N: n, Err: err}
}

// WipeResult результат операции затирания
type WipeResult struct {
	Volume          string
	Rounds          int
	RoundsCompleted int
	BytesWritten    uint64
	FilesCreated    int
	DeleteFailures  int
	Duration        time.Duration
	SpeedMBps       float64
	Warnings        []string
	Cancelled       bool
}

// Recorder receives engine events. Implementations must be cheap; they
// are called from the write loop.
type Recorder interface {
	RoundStarted(status RoundStatus)
	RoundFinished(round int, elapsed time.Duration)
	FileCreated()
	BytesWritten(n int)
	WriteExhausted()
	FilesRemoved(removed, failed int)
}

type nopRecorder struct{}

func (nopRecorder) RoundStarted(RoundStatus)         {}
func (nopRecorder) RoundFinished(int, time.Duration) {}
func (nopRecorder) FileCreated()                     {}
func (nopRecorder) BytesWritten(int)                 {}
func (nopRecorder) WriteExhausted()                  {}
func (nopRecorder) FilesRemoved(int, int)            {}
