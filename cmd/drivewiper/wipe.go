package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"drivewiper/internal/config"
	"drivewiper/internal/logging"
	"drivewiper/internal/metrics"
	"drivewiper/internal/progress"
	"drivewiper/internal/reporting"
	"drivewiper/internal/security"
	"drivewiper/internal/system"
	"drivewiper/internal/wipe"
)

type wipeOptions struct {
	rounds      int
	silent      bool
	unit        string
	fileSize    uint64
	blockSize   uint64
	nameLength  int
	maxSpeed    float64
	profile     string
	metricsAddr string
	force       bool
	lockDir     string
}

func newWipeCmd(opts *globalOptions, s streams) *cobra.Command {
	return wipeCommand(opts, &wipeOptions{}, s)
}

func wipeCommand(opts *globalOptions, wo *wipeOptions, s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe <volume>",
		Short: "Wipe the free space of a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWipe(cmd, opts, wo, s, args[0])
		},
	}

	f := cmd.Flags()
	f.IntVarP(&wo.rounds, "numrounds", "n", 1, "Number of rounds")
	f.BoolVarP(&wo.silent, "silent", "s", false, "Do not show progress")
	f.StringVarP(&wo.unit, "unit", "u", "m", "Unit for sizes and progress (b, k, m, g, t)")
	f.Uint64Var(&wo.fileSize, "filesize", 0, "Maximum size of each temporary file, in --unit")
	f.Uint64Var(&wo.blockSize, "blocksize", 0, "Size of each write, in --unit")
	f.IntVar(&wo.nameLength, "namelength", 0, "Random bytes per temporary file name")
	f.Float64Var(&wo.maxSpeed, "max-speed", 0, "Write speed limit in MB/s, 0 for unlimited")
	f.StringVar(&wo.profile, "profile", "", "Performance profile (safe, balanced, fast, paranoid)")
	f.StringVar(&wo.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVarP(&wo.force, "force", "f", false, "Skip confirmation")
	f.StringVar(&wo.lockDir, "lock-dir", os.TempDir(), "Directory for the per-volume lock file")
	_ = f.MarkHidden("lock-dir")

	return cmd
}

// buildConfig: файл конфигурации, затем профиль, затем явно заданные флаги
func buildConfig(cmd *cobra.Command, opts *globalOptions, wo *wipeOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}

	if wo.profile != "" {
		if err := config.ApplyProfile(cfg, wo.profile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("numrounds") {
		cfg.Wipe.Rounds = wo.rounds
	}
	if flags.Changed("unit") {
		cfg.Wipe.Unit = strings.ToLower(wo.unit)
	}
	unit, err := progress.ParseUnit(cfg.Wipe.Unit)
	if err != nil {
		return nil, err
	}
	if flags.Changed("filesize") {
		if cfg.Wipe.MaxFileSize, err = unitBytes(unit, wo.fileSize); err != nil {
			return nil, errors.Wrap(err, "--filesize")
		}
	}
	if flags.Changed("blocksize") {
		if cfg.Wipe.BlockSize, err = unitBytes(unit, wo.blockSize); err != nil {
			return nil, errors.Wrap(err, "--blocksize")
		}
	}
	if flags.Changed("namelength") {
		cfg.Wipe.FilenameLength = wo.nameLength
	}
	if flags.Changed("max-speed") {
		cfg.Wipe.MaxSpeedMBps = wo.maxSpeed
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = wo.metricsAddr != ""
		cfg.Metrics.Addr = wo.metricsAddr
	}

	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func unitBytes(unit progress.Unit, n uint64) (int64, error) {
	b, err := unit.ToBytes(n)
	if err != nil {
		return 0, err
	}
	if b > math.MaxInt64 {
		return 0, errors.Newf("%d%s is too large", n, unit.Label())
	}
	return int64(b), nil
}

func runWipe(cmd *cobra.Command, opts *globalOptions, wo *wipeOptions, s streams, target string) error {
	startTime := time.Now()

	cfg, err := buildConfig(cmd, opts, wo)
	if err != nil {
		return err
	}
	unit, _ := progress.ParseUnit(cfg.Wipe.Unit)

	logger, err := logging.NewEnterpriseLogger(cfg, opts.verbose)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer logger.Close()

	if wo.profile != "" {
		logger.Log("INFO", "Применён профиль", "profile", wo.profile)
	}

	volume, err := security.CheckVolume(cfg, target)
	if err != nil {
		logger.Log("ERROR", "Том не прошёл проверку", "volume", target, "error", err.Error())
		return err
	}

	lock, err := system.AcquireVolumeLock(wo.lockDir, volume)
	if err != nil {
		return err
	}
	defer lock.Release()

	engine, err := wipe.NewWipeEngine(wipe.WipeConfig{
		Volume:         volume,
		MaxFileSize:    uint64(cfg.Wipe.MaxFileSize),
		BlockSize:      int(cfg.Wipe.BlockSize),
		FilenameLength: cfg.Wipe.FilenameLength,
		MaxSpeedMBps:   cfg.Wipe.MaxSpeedMBps,
	}, logger, engineOptions(cfg)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Log("WARN", "Не все временные файлы удалены при завершении", "error", err.Error())
		}
	}()

	if !wo.force && cfg.Security.RequireConfirmation {
		ok, err := confirm(s, engine, unit, cfg.Wipe.Rounds)
		if err != nil {
			return err
		}
		if !ok {
			logger.Log("INFO", "Операция отменена пользователем")
			fmt.Fprintln(s.out, "Aborted.")
			return nil
		}
	}

	if cfg.Metrics.Enabled {
		addr, err := metrics.StartServer(cfg.Metrics.Addr, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
		logger.Log("INFO", "Метрики доступны", "addr", addr)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Log("WARN", "Получен сигнал, удаляем временные файлы", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Log("INFO", "Запуск drivewiper", "version", Version, "volume", volume, "rounds", cfg.Wipe.Rounds)

	var reporter *progress.Reporter
	if !wo.silent {
		reporter = progress.NewReporter(engine, s.out, unit, cfg.StatusInterval(), logger)
		reporter.Start()
	}

	result, wipeErr := engine.Wipe(ctx, cfg.Wipe.Rounds)

	if reporter != nil {
		if wipeErr == nil {
			reporter.Finish()
		} else {
			reporter.Stop()
			fmt.Fprintln(s.out)
		}
	}

	code := EXIT_SUCCESS
	switch {
	case wipeErr != nil:
		code = EXIT_ERROR
	case result.DeleteFailures > 0:
		code = EXIT_WARNING
	}

	printSummary(s, result, unit)
	saveReport(result, wipeErr, cfg, wo.profile, startTime, code, logger)

	switch {
	case wipeErr != nil:
		return &exitError{code: EXIT_ERROR, err: wipeErr}
	case code == EXIT_WARNING:
		return &exitError{code: EXIT_WARNING, err: errors.Wrapf(errIncompleteCleanup, "%d left on %s", result.DeleteFailures, volume)}
	}
	return nil
}

func engineOptions(cfg *config.Config) []wipe.Option {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return []wipe.Option{wipe.WithRecorder(metrics.NewCollector())}
}

// confirm спрашивает y/N перед затиранием
func confirm(s streams, engine *wipe.WipeEngine, unit progress.Unit, rounds int) (bool, error) {
	free, err := engine.FreeBytes()
	if err != nil {
		return false, err
	}

	fmt.Fprintf(s.out, "WARNING: %s of free space on %s will be overwritten %d time(s).\n",
		unit.Format(free), engine.Volume(), rounds)
	fmt.Fprint(s.out, "Continue? (y/N): ")

	response, err := bufio.NewReader(s.in).ReadString('\n')
	if err != nil && response == "" {
		return false, nil
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

func printSummary(s streams, result *wipe.WipeResult, unit progress.Unit) {
	if result == nil {
		return
	}
	fmt.Fprintf(s.out, "Rounds: %d/%d, written: %s, files: %d, speed: %.1f MB/s, time: %s\n",
		result.RoundsCompleted, result.Rounds, unit.Format(result.BytesWritten),
		result.FilesCreated, result.SpeedMBps, result.Duration.Round(time.Second))
	for _, w := range result.Warnings {
		fmt.Fprintf(s.out, "  Warning: %s\n", w)
	}
}

func saveReport(result *wipe.WipeResult, runErr error, cfg *config.Config, profile string, startTime time.Time, code int, logger *logging.EnterpriseLogger) {
	if !cfg.Reporting.Enabled {
		return
	}
	report := reporting.GenerateReport(result, runErr, cfg, Version, profile, startTime, time.Now(), code)
	path, err := reporting.SaveReport(report, cfg)
	if err != nil {
		logger.Log("WARN", "Ошибка сохранения отчёта", "error", err.Error())
		return
	}
	logger.Log("INFO", "Отчёт сохранён", "run_id", report.RunID, "file", path)
}
