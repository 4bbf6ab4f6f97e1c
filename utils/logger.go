package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LogOptions controls where the process logger writes.
type LogOptions struct {
	Debug bool
	// File is an optional log file written next to stdout. Errors also go to
	// File with an "-error" suffix.
	File string
}

// InitLogger initializes the global logger instance. Only the first call has
// any effect; later calls return the same logger.
func InitLogger(opts LogOptions) *zap.Logger {
	once.Do(func() {
		config := zap.NewProductionConfig()
		if opts.Debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		if opts.File != "" {
			config.OutputPaths = append(config.OutputPaths, opts.File)
			config.ErrorOutputPaths = append(config.ErrorOutputPaths, errorLogPath(opts.File))
		}

		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.StacktraceKey = "stacktrace"

		logger, err := config.Build(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		if err != nil {
			panic(err)
		}

		log = logger
	})

	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}

func errorLogPath(file string) string {
	const ext = ".log"
	if len(file) > len(ext) && file[len(file)-len(ext):] == ext {
		return file[:len(file)-len(ext)] + "-error" + ext
	}
	return file + "-error"
}
