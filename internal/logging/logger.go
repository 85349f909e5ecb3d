package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole    = "console"
	FormatStructured = "structured"
)

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

var encodings = map[string]string{
	FormatConsole:    "console",
	FormatStructured: "json",
}

// LoggerFactory builds zap loggers from the log_level and log_format settings.
type LoggerFactory struct {
	outputPaths []string
}

// NewLoggerFactory returns a factory writing to stderr.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{outputPaths: []string{"stderr"}}
}

// CreateLogger builds a logger for the given level and format.
func (f *LoggerFactory) CreateLogger(level, format string) (*zap.Logger, error) {
	zapLevel, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}
	encoding, ok := encodings[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLevel)
	configuration.Encoding = encoding
	configuration.OutputPaths = f.outputPaths
	configuration.ErrorOutputPaths = f.outputPaths
	configuration.Sampling = nil
	if encoding == "console" {
		configuration.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		configuration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		configuration.DisableStacktrace = true
	}
	return configuration.Build()
}
