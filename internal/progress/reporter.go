package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"drivewiper/internal/logging"
	"drivewiper/internal/wipe"
)

const finishMessage = "Finish!"

// StatusSource is what the reporter polls. *wipe.WipeEngine satisfies it.
type StatusSource interface {
	Status() wipe.RoundStatus
	FreeBytes() (uint64, error)
}

// FormatStatus renders one status line:
//
//	6M/10M 60.00% wiped, round 1/2
//
// Consumed space is the round's starting free space minus the current free
// space, floored at zero when something else freed space meanwhile.
func FormatStatus(status wipe.RoundStatus, free uint64, unit Unit) string {
	size := float64(unit.Size())
	total := float64(status.TotalSpaceAtRoundStart) / size
	current := total - float64(free)/size
	if current < 0 {
		current = 0
	}

	percentage := 0.0
	if status.TotalSpaceAtRoundStart != 0 {
		percentage = current / total * 100
	}

	label := unit.Label()
	return fmt.Sprintf("%s%s/%s%s %.2f%% wiped, round %d/%d",
		formatAmount(current), label, formatAmount(total), label,
		percentage, status.CurrentRound, status.TotalRounds)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Reporter periodically renders engine progress on a single line.
// On a terminal the line is redrawn in place; otherwise a new line is
// written only when the text changes.
type Reporter struct {
	src      StatusSource
	out      io.Writer
	unit     Unit
	interval time.Duration
	inPlace  bool
	logger   *logging.EnterpriseLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	started   bool

	// written only by the loop goroutine, read after done is closed
	maxWidth int
	last     string
}

func NewReporter(src StatusSource, out io.Writer, unit Unit, interval time.Duration, logger *logging.EnterpriseLogger) *Reporter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Reporter{
		src:      src,
		out:      out,
		unit:     unit,
		interval: interval,
		inPlace:  isTerminal(out),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetInPlace overrides terminal detection.
func (r *Reporter) SetInPlace(inPlace bool) { r.inPlace = inPlace }

// Start launches the polling goroutine. Calling it twice has no effect.
func (r *Reporter) Start() {
	r.startOnce.Do(func() {
		r.started = true
		go r.loop()
	})
}

// Stop signals the loop, waits for it and returns the widest line
// rendered. Safe to call more than once and without Start.
func (r *Reporter) Stop() int {
	r.startOnce.Do(func() { close(r.done) })
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return r.maxWidth
}

// Finish stops the reporter and overwrites the status line with the
// final message.
func (r *Reporter) Finish() {
	width := r.Stop()
	if !r.started {
		return
	}
	if r.inPlace {
		fmt.Fprint(r.out, "\r"+finishMessage+strings.Repeat(" ", max(width-len(finishMessage), 0))+"\n")
		return
	}
	fmt.Fprintln(r.out, finishMessage)
}

func (r *Reporter) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.render()
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}

func (r *Reporter) render() {
	status := r.src.Status()
	free, err := r.src.FreeBytes()
	if err != nil {
		// пропускаем тик, движок сам решает, фатально ли это
		r.logger.Log("DEBUG", "Free space poll failed", "error", err.Error())
		return
	}

	msg := FormatStatus(status, free, r.unit)
	r.maxWidth = max(r.maxWidth, len(msg))

	if r.inPlace {
		fmt.Fprint(r.out, "\r"+msg+strings.Repeat(" ", r.maxWidth-len(msg)))
		return
	}
	if msg != r.last {
		fmt.Fprintln(r.out, msg)
	}
	r.last = msg
}
