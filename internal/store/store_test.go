package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreContract(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			v, err := st.Get(ctx, "memo.missing")
			require.NoError(t, err)
			require.Nil(t, v)

			require.NoError(t, st.Set(ctx, "memo.2024-01-01", []byte("dentist")))
			require.NoError(t, st.Set(ctx, "memo.2024-01-02", []byte("gym")))
			require.NoError(t, st.Set(ctx, "memo.2024-01-01", []byte("dentist 10:00")))

			v, err = st.Get(ctx, "memo.2024-01-01")
			require.NoError(t, err)
			require.Equal(t, []byte("dentist 10:00"), v)

			require.NoError(t, st.Set(ctx, "memo.empty", nil))
			v, err = st.Get(ctx, "memo.empty")
			require.NoError(t, err)
			require.NotNil(t, v)
			require.Empty(t, v)

			keys, err := st.Keys(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"memo.2024-01-01", "memo.2024-01-02", "memo.empty"}, keys)

			require.NoError(t, st.Remove(ctx, "memo.2024-01-02"))
			require.NoError(t, st.Remove(ctx, "memo.never-existed"))
			v, err = st.Get(ctx, "memo.2024-01-02")
			require.NoError(t, err)
			require.Nil(t, v)

			require.NoError(t, st.ClearAll(ctx))
			keys, err = st.Keys(ctx)
			require.NoError(t, err)
			require.Empty(t, keys)
		})
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, st.Set(ctx, "k", buf))
	buf[0] = 'x'

	v, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(v))
	v[0] = 'y'

	v, err = st.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(v))
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memos.db")
	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Set(t.Context(), "memo.a", []byte("1")))
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()
	v, err := st.Get(t.Context(), "memo.a")
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
	require.Equal(t, path, st.Path())
}

func TestSQLiteStoreClosedReturnsStoreError(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.Get(t.Context(), "memo.a")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryStore))
}

func TestSelectorAndRelevantKeys(t *testing.T) {
	ctx := t.Context()
	st := NewMemoryStore()
	for _, k := range []string{"memo.b", "memo.a", "memos", "settings.lastSyncTime", "theme"} {
		require.NoError(t, st.Set(ctx, k, []byte("x")))
	}

	sel := Selector{Keys: []string{"memos"}, Prefixes: []string{"memo."}}
	require.True(t, sel.Match("memos"))
	require.False(t, sel.Match("theme"))
	require.False(t, Selector{}.Match("memos"))

	keys, err := RelevantKeys(ctx, st, sel)
	require.NoError(t, err)
	require.Equal(t, []string{"memo.a", "memo.b", "memos"}, keys)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := t.Context()
	ss := NewSettingsStore(NewMemoryStore())

	s, err := ss.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), s)
	require.Equal(t, 5*time.Minute, s.SyncInterval())

	at := time.UnixMilli(1_700_000_000_123)
	require.NoError(t, ss.SetAutoSyncEnabled(ctx, false))
	require.NoError(t, ss.SetSyncInterval(ctx, 15))
	require.NoError(t, ss.SetFileNamePrefix(ctx, "  family  "))
	require.NoError(t, ss.RecordSync(ctx, at, "0123456789abcdef"))

	s, err = ss.Load(ctx)
	require.NoError(t, err)
	require.False(t, s.AutoSyncEnabled)
	require.Equal(t, 15, s.SyncIntervalMinutes)
	require.Equal(t, "family", s.CustomFileNamePrefix)
	require.True(t, at.Equal(s.LastSyncTime))
	require.Equal(t, "0123456789abcdef", s.LastSyncedHash)

	require.NoError(t, ss.SetFileNamePrefix(ctx, " "))
	s, err = ss.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, s.CustomFileNamePrefix)
}

func TestSettingsIntervalBounds(t *testing.T) {
	ctx := t.Context()
	st := NewMemoryStore()
	ss := NewSettingsStore(st)

	for _, bad := range []int{0, 61, -5} {
		err := ss.SetSyncInterval(ctx, bad)
		require.Error(t, err)
		require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	}
	require.NoError(t, ss.SetSyncInterval(ctx, 1))
	require.NoError(t, ss.SetSyncInterval(ctx, 60))

	require.NoError(t, st.Set(ctx, KeySyncIntervalMinutes, []byte("999")))
	require.NoError(t, st.Set(ctx, KeyAutoSyncEnabled, []byte("maybe")))
	s, err := ss.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultSyncIntervalMinutes, s.SyncIntervalMinutes)
	require.True(t, s.AutoSyncEnabled)
}
