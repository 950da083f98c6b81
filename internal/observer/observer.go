// Package observer intercepts local store mutations and reports them as change events.
package observer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/store"
)

// Kind classifies a change.
type Kind int

const (
	Modified Kind = iota
	Removed
	ClearedAll
)

func (k Kind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case ClearedAll:
		return "cleared_all"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ChangeEvent describes one observed mutation of sync-relevant data.
// Key is empty for ClearedAll and for changes detected outside this process.
type ChangeEvent struct {
	Kind       Kind
	Key        string
	ObservedAt time.Time
}

// Sink receives change events. It must not block.
type Sink func(ChangeEvent)

// Store decorates a store.Store and emits a ChangeEvent for every mutation
// of a selected key that actually changed stored data.
type Store struct {
	inner    store.Store
	selector store.Selector
	sink     Sink
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps inner. A nil sink discards events.
func New(inner store.Store, selector store.Selector, sink Sink) *Store {
	return &Store{inner: inner, selector: selector, sink: sink, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, key)
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

func (s *Store) Close() error {
	return s.inner.Close()
}

// Set writes value and emits Modified when the stored bytes changed.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if !s.selector.Match(key) {
		return s.inner.Set(ctx, key, value)
	}

	old, oldErr := s.inner.Get(ctx, key)
	if err := s.inner.Set(ctx, key, value); err != nil {
		return err
	}
	if oldErr == nil && old != nil && bytes.Equal(old, value) {
		return nil
	}
	s.emit(ChangeEvent{Kind: Modified, Key: key})
	return nil
}

// Remove deletes key and emits Removed when it existed.
func (s *Store) Remove(ctx context.Context, key string) error {
	if !s.selector.Match(key) {
		return s.inner.Remove(ctx, key)
	}

	old, oldErr := s.inner.Get(ctx, key)
	if err := s.inner.Remove(ctx, key); err != nil {
		return err
	}
	if oldErr == nil && old == nil {
		return nil
	}
	s.emit(ChangeEvent{Kind: Removed, Key: key})
	return nil
}

// ClearAll removes every key outside the settings namespace and emits
// ClearedAll when any selected key existed. Persisted settings survive.
func (s *Store) ClearAll(ctx context.Context) error {
	keys, err := s.inner.Keys(ctx)
	if err != nil {
		return err
	}
	relevant := false
	for _, k := range keys {
		if strings.HasPrefix(k, store.SettingsNamespace) {
			continue
		}
		if err := s.inner.Remove(ctx, k); err != nil {
			return err
		}
		relevant = relevant || s.selector.Match(k)
	}
	if relevant {
		s.emit(ChangeEvent{Kind: ClearedAll})
	}
	return nil
}

// emit forwards ev to the sink. A panicking sink is logged and swallowed so
// ordinary writes never fail because of change tracking.
func (s *Store) emit(ev ChangeEvent) {
	if s.sink == nil {
		return
	}
	ev.ObservedAt = s.now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Change sink panicked", logfields.Key(ev.Key), logfields.Panic(r))
		}
	}()
	s.sink(ev)
}
