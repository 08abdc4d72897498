package file

import (
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements LoggerInstance writing logfmt lines to a
// size-rotated file via lumberjack.
type FileLogger struct {
	logger *log.Logger
}

// FileLoggerParams contains configuration for creating a FileLogger.
type FileLoggerParams struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Debug      bool
}

// NewFileLogger creates a file logger with rotation. Path must be writable.
func NewFileLogger(params FileLoggerParams) *FileLogger {
	if params.MaxSizeMB <= 0 {
		params.MaxSizeMB = 50
	}
	if params.MaxBackups <= 0 {
		params.MaxBackups = 5
	}
	writer := &lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
	}
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(writer, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       log.LogfmtFormatter,
	})
	return &FileLogger{
		logger: logger,
	}
}

// Log writes a message at the default level.
func (f *FileLogger) Log(message string, keyvals ...any) {
	f.logger.Print(message, keyvals...)
}

// Debug writes a message at DEBUG level.
func (f *FileLogger) Debug(message string, keyvals ...any) {
	f.logger.Debug(message, keyvals...)
}

// Info writes a message at INFO level.
func (f *FileLogger) Info(message string, keyvals ...any) {
	f.logger.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func (f *FileLogger) Warn(message string, keyvals ...any) {
	f.logger.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func (f *FileLogger) Error(message string, keyvals ...any) {
	f.logger.Error(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (f *FileLogger) Fatal(message string, keyvals ...any) {
	f.logger.Fatal(message, keyvals...)
}
