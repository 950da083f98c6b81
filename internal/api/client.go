package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/coordinator"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// Client talks to a running daemon's admin API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for addr ("host:port" or a full URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Minute}}
}

// Status fetches the coordinator status.
func (c *Client) Status(ctx context.Context) (coordinator.Status, error) {
	var st coordinator.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Sync requests a manual sync and waits for its outcome.
func (c *Client) Sync(ctx context.Context, fileName string) (SyncResponse, error) {
	var out SyncResponse
	err := c.do(ctx, http.MethodPost, "/api/sync", SyncRequest{FileName: fileName}, &out)
	return out, err
}

// SetAutoSync enables or disables automatic sync.
func (c *Client) SetAutoSync(ctx context.Context, enabled bool) (coordinator.Status, error) {
	path := "/api/auto-sync/disable"
	if enabled {
		path = "/api/auto-sync/enable"
	}
	var st coordinator.Status
	err := c.do(ctx, http.MethodPost, path, nil, &st)
	return st, err
}

// SetInterval changes the periodic sync interval.
func (c *Client) SetInterval(ctx context.Context, minutes int) (coordinator.Status, error) {
	var st coordinator.Status
	err := c.do(ctx, http.MethodPut, "/api/interval", IntervalRequest{Minutes: minutes}, &st)
	return st, err
}

// SetPrefix changes the backup file name label.
func (c *Client) SetPrefix(ctx context.Context, prefix string) (coordinator.Status, error) {
	var st coordinator.Status
	err := c.do(ctx, http.MethodPut, "/api/prefix", PrefixRequest{Prefix: prefix}, &st)
	return st, err
}

// CheckRemote verifies the daemon can reach its remote.
func (c *Client) CheckRemote(ctx context.Context) (RemoteCheckResponse, error) {
	var out RemoteCheckResponse
	err := c.do(ctx, http.MethodGet, "/api/remote/check", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "encode request").Build()
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "build request").Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "daemon is not reachable").
			WithContext("addr", c.base).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ferrors.HTTPErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&e); derr != nil || e.Error == "" {
			return ferrors.NewError(ferrors.CategoryDaemon, fmt.Sprintf("daemon returned %s", resp.Status)).Build()
		}
		category := ferrors.ErrorCategory(e.Code)
		if category == "" {
			category = ferrors.CategoryDaemon
		}
		return ferrors.NewError(category, e.Error).Build()
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	envelope := Response{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "decode daemon response").Build()
	}
	return nil
}

// ListMemos returns every sync-relevant memo.
func (c *Client) ListMemos(ctx context.Context) ([]Memo, error) {
	var out []Memo
	err := c.do(ctx, http.MethodGet, "/api/memos", nil, &out)
	return out, err
}

// GetMemo reads one memo.
func (c *Client) GetMemo(ctx context.Context, key string) (Memo, error) {
	var out Memo
	err := c.do(ctx, http.MethodGet, "/api/memos/"+url.PathEscape(key), nil, &out)
	return out, err
}

// SetMemo writes one memo.
func (c *Client) SetMemo(ctx context.Context, key, value string) error {
	return c.doRaw(ctx, http.MethodPut, "/api/memos/"+url.PathEscape(key), strings.NewReader(value))
}

// RemoveMemo deletes one memo.
func (c *Client) RemoveMemo(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/memos/"+url.PathEscape(key), nil, nil)
}

// ClearMemos deletes every sync-relevant memo.
func (c *Client) ClearMemos(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/memos", nil, nil)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "build request").Build()
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return c.send(req, nil)
}
