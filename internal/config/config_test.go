package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("version: \"1.0\"\n"))
	require.NoError(t, err)

	require.Equal(t, DefaultDebounceWindow, cfg.Sync.DebounceWindow)
	require.Equal(t, DefaultTickInterval, cfg.Sync.TickInterval)
	require.Equal(t, []string{DefaultKeyPrefix}, cfg.Sync.KeyPrefixes)
	require.Equal(t, DefaultLabel, cfg.Sync.Label)
	require.Equal(t, RetryFixed, cfg.Retry.Mode)
	require.Equal(t, DefaultRetryDelay, cfg.Retry.Delay)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, RemoteDir, cfg.Remote.Type)
	require.Equal(t, DefaultRemoteTimeout, cfg.Remote.Timeout)
	require.Equal(t, filepath.Join(DefaultDataDir, "memos.db"), cfg.Store.Path)
	require.Equal(t, filepath.Join(DefaultDataDir, "backups"), cfg.Remote.Dir.Path)
	require.Equal(t, LogLevelInfo, cfg.Logging.Level)
	require.Equal(t, LogFormatText, cfg.Logging.Format)
}

func TestParseFullConfig(t *testing.T) {
	t.Setenv("MEMO_HTTP_TOKEN", "s3cret")

	content := "version: \"1.0\"\n" +
		"sync:\n" +
		"  debounce_window: 1500ms\n" +
		"  tick_interval: 2m\n" +
		"  keys: [memos]\n" +
		"  label: \"  calendar  \"\n" +
		"retry:\n" +
		"  mode: Exponential\n" +
		"  delay: 2s\n" +
		"  max_delay: 10s\n" +
		"  max_attempts: 5\n" +
		"remote:\n" +
		"  type: HTTPS\n" +
		"  timeout: 10s\n" +
		"  http:\n" +
		"    base_url: https://backup.example.com/memos/\n" +
		"    token: ${MEMO_HTTP_TOKEN}\n" +
		"logging:\n" +
		"  level: DEBUG\n" +
		"  format: json\n"

	cfg, err := Parse([]byte(content))
	require.NoError(t, err)

	require.Equal(t, 1500*time.Millisecond, cfg.Sync.DebounceWindow)
	require.Equal(t, 2*time.Minute, cfg.Sync.TickInterval)
	require.Equal(t, []string{"memos"}, cfg.Sync.Keys)
	require.Empty(t, cfg.Sync.KeyPrefixes)
	require.Equal(t, "calendar", cfg.Sync.Label)
	require.Equal(t, RetryExponential, cfg.Retry.Mode)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, RemoteHTTP, cfg.Remote.Type)
	require.Equal(t, "https://backup.example.com/memos", cfg.Remote.HTTP.BaseURL)
	require.Equal(t, "s3cret", cfg.Remote.HTTP.Token)
	require.Equal(t, LogLevelDebug, cfg.Logging.Level)
	require.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category errors.ErrorCategory
	}{
		{"wrong version", "version: \"2.0\"\n", errors.CategoryConfig},
		{"unknown remote", "remote:\n  type: ftp\n", errors.CategoryConfig},
		{"unknown retry mode", "retry:\n  mode: random\n", errors.CategoryConfig},
		{"git without url", "remote:\n  type: git\n", errors.CategoryValidation},
		{"nats without url", "remote:\n  type: nats\n", errors.CategoryValidation},
		{"relative http url", "remote:\n  type: http\n  http:\n    base_url: /upload\n", errors.CategoryValidation},
		{"settings overlap", "sync:\n  key_prefixes: [settings.]\n", errors.CategoryValidation},
		{"max delay below delay", "retry:\n  delay: 10s\n  max_delay: 1s\n", errors.CategoryValidation},
		{"tick below debounce", "sync:\n  debounce_window: 2m\n  tick_interval: 1m\n", errors.CategoryValidation},
		{"bad yaml", "sync: [\n", errors.CategoryConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			require.Equal(t, tt.category, errors.GetCategory(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestInitWritesLoadableExample(t *testing.T) {
	t.Setenv("MEMOBACKUP_GIT_TOKEN", "")
	t.Setenv("MEMOBACKUP_HTTP_TOKEN", "")
	path := filepath.Join(t.TempDir(), "conf", "memobackup.yaml")

	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, RemoteDir, cfg.Remote.Type)
	require.True(t, cfg.Metrics.Enabled)

	err = Init(path, false)
	require.Error(t, err)
	require.NoError(t, Init(path, true))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLogLevelSlog(t *testing.T) {
	require.Equal(t, "DEBUG", NormalizeLogLevel("debug").SlogLevel().String())
	require.Equal(t, "WARN", NormalizeLogLevel("Warning").SlogLevel().String())
	require.Equal(t, "INFO", NormalizeLogLevel("verbose").SlogLevel().String())
}
