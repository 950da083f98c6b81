// Package store provides the local key-value persistence memos live in.
package store

import (
	"context"
	"slices"
	"strings"
)

// Store is the local key-value contract. Get returns nil, nil for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Selector decides which keys are sync-relevant.
type Selector struct {
	Keys     []string
	Prefixes []string
}

// Match reports whether key is selected. An empty selector matches nothing.
func (s Selector) Match(key string) bool {
	if slices.Contains(s.Keys, key) {
		return true
	}
	for _, p := range s.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// RelevantKeys returns the sorted subset of keys in st that sel matches.
func RelevantKeys(ctx context.Context, st Store, sel Selector) ([]string, error) {
	all, err := st.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		if sel.Match(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out, nil
}
