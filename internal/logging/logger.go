package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"drivewiper/internal/config"
)

// EnterpriseLogger логгер с выводом в консоль и JSON-файл аудита
type EnterpriseLogger struct {
	zl   *zap.SugaredLogger
	file *os.File
}

// NewEnterpriseLogger строит логгер по секции logging конфигурации.
// В консоль (stderr) попадают только ERROR/FATAL, если не включён verbose.
func NewEnterpriseLogger(cfg *config.Config, verbose bool) (*EnterpriseLogger, error) {
	level := ParseLevel(cfg.Logging.Level)

	consoleLevel := zapcore.ErrorLevel
	if verbose {
		consoleLevel = level
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), consoleLevel),
	}

	l := &EnterpriseLogger{}

	// Автоматическое создание директории для логов
	if cfg.Logging.File != "" {
		logDir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] cannot create log directory %s: %v\n", logDir, err)
		} else if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] cannot open log file %s: %v\n", cfg.Logging.File, err)
		} else {
			l.file = f
			jsonCfg := zap.NewProductionEncoderConfig()
			jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			jsonCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(f), level))
		}
	}

	l.zl = zap.New(zapcore.NewTee(cores...)).Sugar()
	return l, nil
}

// NewWithCore оборачивает произвольное ядро zap
func NewWithCore(core zapcore.Core) *EnterpriseLogger {
	return &EnterpriseLogger{zl: zap.New(core).Sugar()}
}

// NewNopLogger возвращает логгер, который ничего не пишет
func NewNopLogger() *EnterpriseLogger {
	return &EnterpriseLogger{zl: zap.NewNop().Sugar()}
}

// consoleEncoder: читаемый формат для терминала, JSON для перенаправленного вывода
func consoleEncoder() zapcore.Encoder {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// ParseLevel переводит уровень из конфигурации в уровень zap.
// FATAL пишется как ошибка и не завершает процесс.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR", "FATAL":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Log пишет запись уровня level с парами ключ-значение
func (l *EnterpriseLogger) Log(level, message string, fields ...interface{}) {
	if l == nil || l.zl == nil {
		return
	}

	if len(fields)%2 != 0 {
		fields = append(fields, "<missing>")
	}

	switch ParseLevel(level) {
	case zapcore.DebugLevel:
		l.zl.Debugw(message, fields...)
	case zapcore.WarnLevel:
		l.zl.Warnw(message, fields...)
	case zapcore.ErrorLevel:
		l.zl.Errorw(message, fields...)
	default:
		l.zl.Infow(message, fields...)
	}
}

func (l *EnterpriseLogger) Close() error {
	if l == nil {
		return nil
	}
	if l.zl != nil {
		_ = l.zl.Sync()
	}
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
