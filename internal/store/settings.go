package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// SettingsNamespace prefixes every persisted settings key.
const SettingsNamespace = "settings."

// Persisted settings keys. They live outside every sync-relevant namespace.
const (
	KeyAutoSyncEnabled      = "settings.autoSyncEnabled"
	KeySyncIntervalMinutes  = "settings.syncIntervalMinutes"
	KeyCustomFileNamePrefix = "settings.customFileNamePrefix"
	KeyLastSyncTime         = "settings.lastSyncTime"
	KeyLastSyncedHash       = "settings.lastSyncedHash"
)

const (
	MinSyncIntervalMinutes     = 1
	MaxSyncIntervalMinutes     = 60
	DefaultSyncIntervalMinutes = 5
)

// Settings is the persisted coordinator configuration surface.
type Settings struct {
	AutoSyncEnabled      bool
	SyncIntervalMinutes  int
	CustomFileNamePrefix string
	LastSyncTime         time.Time // zero when never synced
	LastSyncedHash       string
}

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{AutoSyncEnabled: true, SyncIntervalMinutes: DefaultSyncIntervalMinutes}
}

// SyncInterval returns the interval as a duration.
func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}

// ValidateInterval rejects intervals outside 1..60 minutes.
func ValidateInterval(minutes int) error {
	if minutes < MinSyncIntervalMinutes || minutes > MaxSyncIntervalMinutes {
		return errors.ValidationError(fmt.Sprintf("sync interval must be between %d and %d minutes, got %d",
			MinSyncIntervalMinutes, MaxSyncIntervalMinutes, minutes)).
			WithContext("minutes", minutes).
			Build()
	}
	return nil
}

// SettingsStore reads and writes Settings through a Store.
type SettingsStore struct {
	store Store
}

// NewSettingsStore wraps st.
func NewSettingsStore(st Store) *SettingsStore {
	return &SettingsStore{store: st}
}

// Load reads all settings. Missing or unparsable values fall back to defaults.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	out := DefaultSettings()

	raw, err := s.get(ctx, KeyAutoSyncEnabled)
	if err != nil {
		return out, err
	}
	if b, perr := strconv.ParseBool(raw); perr == nil {
		out.AutoSyncEnabled = b
	}

	if raw, err = s.get(ctx, KeySyncIntervalMinutes); err != nil {
		return out, err
	}
	if n, perr := strconv.Atoi(raw); perr == nil && ValidateInterval(n) == nil {
		out.SyncIntervalMinutes = n
	}

	if raw, err = s.get(ctx, KeyCustomFileNamePrefix); err != nil {
		return out, err
	}
	out.CustomFileNamePrefix = raw

	if raw, err = s.get(ctx, KeyLastSyncTime); err != nil {
		return out, err
	}
	if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil && ms > 0 {
		out.LastSyncTime = time.UnixMilli(ms)
	}

	if raw, err = s.get(ctx, KeyLastSyncedHash); err != nil {
		return out, err
	}
	out.LastSyncedHash = raw

	return out, nil
}

func (s *SettingsStore) SetAutoSyncEnabled(ctx context.Context, enabled bool) error {
	return s.store.Set(ctx, KeyAutoSyncEnabled, []byte(strconv.FormatBool(enabled)))
}

func (s *SettingsStore) SetSyncInterval(ctx context.Context, minutes int) error {
	if err := ValidateInterval(minutes); err != nil {
		return err
	}
	return s.store.Set(ctx, KeySyncIntervalMinutes, []byte(strconv.Itoa(minutes)))
}

// SetFileNamePrefix stores the prefix; blank clears it.
func (s *SettingsStore) SetFileNamePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return s.store.Remove(ctx, KeyCustomFileNamePrefix)
	}
	return s.store.Set(ctx, KeyCustomFileNamePrefix, []byte(prefix))
}

// RecordSync persists the metadata of a successful sync.
func (s *SettingsStore) RecordSync(ctx context.Context, at time.Time, hash string) error {
	if err := s.store.Set(ctx, KeyLastSyncTime, []byte(strconv.FormatInt(at.UnixMilli(), 10))); err != nil {
		return err
	}
	return s.store.Set(ctx, KeyLastSyncedHash, []byte(hash))
}

func (s *SettingsStore) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load setting %s: %w", key, err)
	}
	return strings.TrimSpace(string(v)), nil
}
