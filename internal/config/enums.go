package config

import (
	"log/slog"

	"git.home.luguber.info/inful/memobackup/internal/foundation/normalization"
)

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps user input onto a LogLevel, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// SlogLevel converts the level for use with a slog handler.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// NormalizeLogFormat maps user input onto a LogFormat, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}

// RetryMode enumerates supported backoff strategies for retries.
type RetryMode string

const (
	RetryFixed       RetryMode = "fixed"
	RetryLinear      RetryMode = "linear"
	RetryExponential RetryMode = "exponential"
)

var retryModeNormalizer = normalization.NewNormalizer(map[string]RetryMode{
	"fixed":       RetryFixed,
	"linear":      RetryLinear,
	"exponential": RetryExponential,
}, RetryFixed)

// RemoteType enumerates the supported backup targets.
type RemoteType string

const (
	RemoteDir  RemoteType = "dir"
	RemoteGit  RemoteType = "git"
	RemoteNATS RemoteType = "nats"
	RemoteHTTP RemoteType = "http"
)

var remoteTypeNormalizer = normalization.NewNormalizer(map[string]RemoteType{
	"dir":       RemoteDir,
	"directory": RemoteDir,
	"git":       RemoteGit,
	"nats":      RemoteNATS,
	"http":      RemoteHTTP,
	"https":     RemoteHTTP,
}, RemoteDir)
