package core

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Path   string // #stderr, #stdout or a file path
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	loggerMu     sync.RWMutex
	globalLogger = zap.NewNop()
	globalLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// outputPath converts the configured log path to a zap sink name
func outputPath(path string) string {
	switch path {
	case "", "#stderr":
		return "stderr"
	case "#stdout":
		return "stdout"
	default:
		return path
	}
}

// InitLogger builds the global logger. Until it is called all log calls
// are discarded.
func InitLogger(cfg LogConfig) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	globalLevel.SetLevel(level)
	config.Level = globalLevel
	config.OutputPaths = []string{outputPath(cfg.Path)}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()
	return nil
}

// SetLogger replaces the global logger (used by tests).
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = logger
}

// SetLogLevel changes the global log level at runtime.
func SetLogLevel(level string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err == nil {
		globalLevel.SetLevel(l)
	}
}

// L returns the global logger.
func L() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// SyncLogger flushes any buffered log entries.
func SyncLogger() error {
	return L().Sync()
}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}
