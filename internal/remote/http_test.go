package remote

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

type capturedRequest struct {
	method, path, auth, silent, body string
}

func newBackupServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			silent: r.Header.Get(SilentHeader),
			body:   string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestHTTPClientUpload(t *testing.T) {
	srv, reqs := newBackupServer(t, http.StatusCreated)
	c := NewHTTPClient(config.HTTPRemoteConfig{BaseURL: srv.URL + "/memos", Token: "tok"}, nil)

	res, err := c.Upload(t.Context(), "memo-calendar-auto-2024-01-01-000000.json", []byte(`{"version":1}`), true)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/memos/memo-calendar-auto-2024-01-01-000000.json", res.Location)

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	require.Equal(t, http.MethodPut, got.method)
	require.Equal(t, "/memos/memo-calendar-auto-2024-01-01-000000.json", got.path)
	require.Equal(t, "Bearer tok", got.auth)
	require.Equal(t, "true", got.silent)
	require.Equal(t, `{"version":1}`, got.body)
}

func TestHTTPClientStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		category  errors.ErrorCategory
		retryable bool
	}{
		{http.StatusUnauthorized, errors.CategoryAuth, false},
		{http.StatusForbidden, errors.CategoryAuth, false},
		{http.StatusTooManyRequests, errors.CategoryNetwork, true},
		{http.StatusInternalServerError, errors.CategoryNetwork, true},
		{http.StatusBadGateway, errors.CategoryNetwork, true},
		{http.StatusBadRequest, errors.CategoryMalformedRequest, false},
		{http.StatusRequestEntityTooLarge, errors.CategoryMalformedRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newBackupServer(t, tt.status)
			c := NewHTTPClient(config.HTTPRemoteConfig{BaseURL: srv.URL, Token: "tok"}, nil)

			_, err := c.Upload(t.Context(), "a.json", []byte("{}"), false)
			require.Error(t, err)
			ce, ok := errors.AsClassified(err)
			require.True(t, ok)
			require.Equal(t, tt.category, ce.Category())
			require.Equal(t, tt.retryable, ce.CanRetry())
		})
	}
}

func TestHTTPClientNotConnected(t *testing.T) {
	c := NewHTTPClient(config.HTTPRemoteConfig{BaseURL: "https://backup.example.com"}, nil)
	_, err := c.Upload(t.Context(), "a.json", []byte("{}"), false)
	require.True(t, errors.HasCategory(err, errors.CategoryNotConnected))
	require.True(t, errors.HasCategory(c.Check(t.Context()), errors.CategoryNotConnected))
}

func TestHTTPClientUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(config.HTTPRemoteConfig{BaseURL: url, Token: "tok"}, nil)
	_, err := c.Upload(t.Context(), "a.json", []byte("{}"), false)
	require.True(t, errors.HasCategory(err, errors.CategoryNetwork))
}

func TestHTTPClientCheck(t *testing.T) {
	srv, reqs := newBackupServer(t, http.StatusNotFound)
	c := NewHTTPClient(config.HTTPRemoteConfig{BaseURL: srv.URL, Token: "tok"}, nil)
	require.NoError(t, c.Check(t.Context()))
	require.Equal(t, http.MethodHead, (*reqs)[0].method)
	require.Equal(t, "Bearer tok", (*reqs)[0].auth)

	denied, _ := newBackupServer(t, http.StatusUnauthorized)
	c = NewHTTPClient(config.HTTPRemoteConfig{BaseURL: denied.URL, Token: "expired"}, nil)
	require.True(t, errors.HasCategory(c.Check(t.Context()), errors.CategoryAuth))
}
