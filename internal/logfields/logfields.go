package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyIntentID   = "intent_id"
	KeyReason     = "reason"
	KeyHash       = "hash"
	KeyFileName   = "file_name"
	KeyAttempt    = "attempt"
	KeyPhase      = "phase"
	KeyKey        = "key"
	KeyRemote     = "remote"
	KeyDurationMS = "duration_ms"
	KeyDelay      = "delay"
	KeyCategory   = "category"
	KeyError      = "error"
	KeyPath       = "path"
	KeyOp         = "op"
	KeyPanic      = "panic"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func IntentID(id string) slog.Attr     { return slog.String(KeyIntentID, id) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func FileName(n string) slog.Attr      { return slog.String(KeyFileName, n) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func Phase(p string) slog.Attr         { return slog.String(KeyPhase, p) }
func Key(k string) slog.Attr           { return slog.String(KeyKey, k) }
func Remote(name string) slog.Attr     { return slog.String(KeyRemote, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Delay(d time.Duration) slog.Attr  { return slog.Duration(KeyDelay, d) }
func Category(c string) slog.Attr      { return slog.String(KeyCategory, c) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Op(op string) slog.Attr           { return slog.String(KeyOp, op) }
func Panic(v any) slog.Attr            { return slog.Any(KeyPanic, v) }

// Hash logs a shortened fingerprint; full hashes add noise without helping correlation.
func Hash(h string) slog.Attr {
	if len(h) > 8 {
		h = h[:8]
	}
	return slog.String(KeyHash, h)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
