package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drivewiper/internal/logging"
	"drivewiper/internal/wipe"
)

// DurationBuckets covers a round from a few seconds to several hours.
var DurationBuckets = []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400}

var (
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server

	// BytesWrittenTotal counts random bytes that reached the volume
	BytesWrittenTotal prometheus.Counter

	// FilesCreatedTotal counts temporary wipe files
	FilesCreatedTotal prometheus.Counter

	// FilesRemovedTotal counts temporary files deleted again
	FilesRemovedTotal prometheus.Counter

	// DeleteFailuresTotal counts temporary files left behind
	DeleteFailuresTotal prometheus.Counter

	// WritesExhaustedTotal counts block writes that hit a full volume
	WritesExhaustedTotal prometheus.Counter

	CurrentRound prometheus.Gauge
	TotalRounds  prometheus.Gauge

	// RoundStartFreeBytes is the free space measured when the round began
	RoundStartFreeBytes prometheus.Gauge

	RoundDuration prometheus.Histogram
)

// Init creates and registers all collectors with the default registry.
// Safe to call multiple times.
func Init() {
	initOnce.Do(func() {
		BytesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivewiper_bytes_written_total",
			Help: "Total random bytes written to free space.",
		})
		FilesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivewiper_files_created_total",
			Help: "Total temporary files created.",
		})
		FilesRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivewiper_files_removed_total",
			Help: "Total temporary files deleted.",
		})
		DeleteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivewiper_delete_failures_total",
			Help: "Total temporary files that could not be deleted.",
		})
		WritesExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drivewiper_writes_exhausted_total",
			Help: "Block writes stopped by a full volume.",
		})
		CurrentRound = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drivewiper_current_round",
			Help: "Round currently running, 0 before the first round.",
		})
		TotalRounds = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drivewiper_total_rounds",
			Help: "Rounds requested for the running wipe.",
		})
		RoundStartFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drivewiper_round_start_free_bytes",
			Help: "Free bytes measured at the start of the current round.",
		})
		RoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drivewiper_round_duration_seconds",
			Help:    "Duration of completed or aborted rounds in seconds.",
			Buckets: DurationBuckets,
		})

		prometheus.MustRegister(
			BytesWrittenTotal,
			FilesCreatedTotal,
			FilesRemovedTotal,
			DeleteFailuresTotal,
			WritesExhaustedTotal,
			CurrentRound,
			TotalRounds,
			RoundStartFreeBytes,
			RoundDuration,
		)
	})
}

// Collector feeds wipe engine events into the package collectors.
type Collector struct{}

var _ wipe.Recorder = Collector{}

// NewCollector initializes the collectors if needed.
func NewCollector() Collector {
	Init()
	return Collector{}
}

func (Collector) RoundStarted(s wipe.RoundStatus) {
	CurrentRound.Set(float64(s.CurrentRound))
	TotalRounds.Set(float64(s.TotalRounds))
	RoundStartFreeBytes.Set(float64(s.TotalSpaceAtRoundStart))
}

func (Collector) RoundFinished(_ int, elapsed time.Duration) {
	RoundDuration.Observe(elapsed.Seconds())
}

func (Collector) FileCreated() { FilesCreatedTotal.Inc() }

func (Collector) BytesWritten(n int) { BytesWrittenTotal.Add(float64(n)) }

func (Collector) WriteExhausted() { WritesExhaustedTotal.Inc() }

func (Collector) FilesRemoved(removed, failed int) {
	FilesRemovedTotal.Add(float64(removed))
	DeleteFailuresTotal.Add(float64(failed))
}

// StartServer exposes /metrics on addr. The listener is bound before
// returning so address errors surface to the caller.
func StartServer(addr string, logger *logging.EnterpriseLogger) (string, error) {
	Init()

	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		return "", errors.Newf("metrics server already running on %s", currentSrv.Addr)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Wrapf(err, "listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	currentSrv = srv

	go func() {
		logger.Log("INFO", "Metrics server listening", "addr", srv.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log("ERROR", "Metrics server error", "error", err.Error())
		}
	}()

	return srv.Addr, nil
}

// Shutdown gracefully stops the metrics server if it is running.
func Shutdown(ctx context.Context) error {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv == nil {
		return nil
	}
	err := currentSrv.Shutdown(ctx)
	currentSrv = nil
	return err
}
