package config

import (
	"fmt"
	"net/url"
	"strings"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

// SettingsPrefix is the key namespace reserved for persisted coordinator settings.
// Sync-relevant keys must not overlap it, otherwise saving a setting would trigger a sync.
const SettingsPrefix = store.SettingsNamespace

// Validate checks a normalized and defaulted configuration.
func Validate(cfg *Config) error {
	if cfg.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts", "must be at least 1")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.Delay {
		return invalid("retry.max_delay", "must not be smaller than retry.delay")
	}
	if cfg.Sync.TickInterval < cfg.Sync.DebounceWindow {
		return invalid("sync.tick_interval", "must not be shorter than sync.debounce_window")
	}
	for _, k := range cfg.Sync.Keys {
		if strings.HasPrefix(k, SettingsPrefix) {
			return invalid("sync.keys", fmt.Sprintf("key %q overlaps the reserved %q namespace", k, SettingsPrefix))
		}
	}
	for _, p := range cfg.Sync.KeyPrefixes {
		if strings.HasPrefix(p, SettingsPrefix) || strings.HasPrefix(SettingsPrefix, p) {
			return invalid("sync.key_prefixes", fmt.Sprintf("prefix %q overlaps the reserved %q namespace", p, SettingsPrefix))
		}
	}

	switch cfg.Remote.Type {
	case RemoteDir:
		// path always has a default
	case RemoteGit:
		if cfg.Remote.Git.URL == "" {
			return invalid("remote.git.url", "is required for the git remote")
		}
	case RemoteNATS:
		if cfg.Remote.NATS.URL == "" {
			return invalid("remote.nats.url", "is required for the nats remote")
		}
	case RemoteHTTP:
		u, err := url.Parse(cfg.Remote.HTTP.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("remote.http.base_url", "must be an absolute URL")
		}
	default:
		return invalid("remote.type", fmt.Sprintf("unsupported remote type %q", cfg.Remote.Type))
	}
	return nil
}

func invalid(field, reason string) error {
	return errors.ValidationError(fmt.Sprintf("configuration validation failed: %s %s", field, reason)).
		WithContext("field", field).
		Build()
}
