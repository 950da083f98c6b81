package config

import (
	"path/filepath"
	"time"
)

const (
	DefaultDebounceWindow = 3 * time.Second
	DefaultTickInterval   = 60 * time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultRetryMaxDelay  = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultRemoteTimeout  = 30 * time.Second
	DefaultLabel          = "memo-calendar"
	DefaultKeyPrefix      = "memo."
	DefaultDataDir        = ".memobackup"
	DefaultAdminAddr      = "127.0.0.1:8787"
	DefaultGitBranch      = "main"
	DefaultNATSBucket     = "memobackup"
	DefaultNATSSubject    = "memobackup.uploads"
)

func applyDefaults(cfg *Config) {
	if cfg.Daemon.DataDir == "" {
		cfg.Daemon.DataDir = DefaultDataDir
	}
	if cfg.Daemon.AdminAddr == "" {
		cfg.Daemon.AdminAddr = DefaultAdminAddr
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.Daemon.DataDir, "memos.db")
	}

	if cfg.Sync.DebounceWindow <= 0 {
		cfg.Sync.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Sync.TickInterval <= 0 {
		cfg.Sync.TickInterval = DefaultTickInterval
	}
	if len(cfg.Sync.Keys) == 0 && len(cfg.Sync.KeyPrefixes) == 0 {
		cfg.Sync.KeyPrefixes = []string{DefaultKeyPrefix}
	}
	if cfg.Sync.Label == "" {
		cfg.Sync.Label = DefaultLabel
	}

	if cfg.Retry.Mode == "" {
		cfg.Retry.Mode = RetryFixed
	}
	if cfg.Retry.Delay <= 0 {
		cfg.Retry.Delay = DefaultRetryDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.Remote.Type == "" {
		cfg.Remote.Type = RemoteDir
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = DefaultRemoteTimeout
	}
	if cfg.Remote.Dir.Path == "" {
		cfg.Remote.Dir.Path = filepath.Join(cfg.Daemon.DataDir, "backups")
	}
	if cfg.Remote.Git.Branch == "" {
		cfg.Remote.Git.Branch = DefaultGitBranch
	}
	if cfg.Remote.Git.Workdir == "" {
		cfg.Remote.Git.Workdir = filepath.Join(cfg.Daemon.DataDir, "git")
	}
	if cfg.Remote.Git.AuthorName == "" {
		cfg.Remote.Git.AuthorName = "memobackup"
	}
	if cfg.Remote.Git.AuthorEmail == "" {
		cfg.Remote.Git.AuthorEmail = "memobackup@localhost"
	}
	if cfg.Remote.NATS.Bucket == "" {
		cfg.Remote.NATS.Bucket = DefaultNATSBucket
	}
	if cfg.Remote.NATS.Subject == "" {
		cfg.Remote.NATS.Subject = DefaultNATSSubject
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}
