package config

import (
	"errors"
	"fmt"
	"strings"
)

// normalize canonicalizes enumerations and trims free-form strings.
// Unknown retry modes and remote types are errors; log settings fall back silently.
func normalize(cfg *Config) error {
	var errs []error

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))

	mode, err := retryModeNormalizer.Parse(string(cfg.Retry.Mode))
	if err != nil {
		errs = append(errs, fmt.Errorf("retry.mode: %w", err))
	}
	cfg.Retry.Mode = mode

	rt, err := remoteTypeNormalizer.Parse(string(cfg.Remote.Type))
	if err != nil {
		errs = append(errs, fmt.Errorf("remote.type: %w", err))
	}
	cfg.Remote.Type = rt

	cfg.Sync.Label = strings.TrimSpace(cfg.Sync.Label)
	cfg.Sync.Keys = trimNonEmpty(cfg.Sync.Keys)
	cfg.Sync.KeyPrefixes = trimNonEmpty(cfg.Sync.KeyPrefixes)
	cfg.Remote.HTTP.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Remote.HTTP.BaseURL), "/")

	return errors.Join(errs...)
}

func trimNonEmpty(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
