// Package remote implements the backup targets snapshots are uploaded to.
//
// Every backend reports failures as classified errors so the coordinator can
// tell retryable conditions (network, timeouts, 5xx) from ones that need the
// user (not connected, bad credentials) or will never succeed (malformed request).
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
	"git.home.luguber.info/inful/memobackup/internal/logfields"
	"git.home.luguber.info/inful/memobackup/internal/observability"
)

// UploadResult describes a stored backup.
type UploadResult struct {
	FileName string
	Location string // backend specific: path, commit, KV revision or URL
	Bytes    int
}

// Client is the remote backup contract.
type Client interface {
	// Upload stores content under fileName. Silent uploads skip user-facing notices.
	Upload(ctx context.Context, fileName string, content []byte, silent bool) (UploadResult, error)
	// Check verifies that the remote is reachable and the credentials are valid.
	Check(ctx context.Context) error
	Name() string
}

// New builds the client selected by cfg.Type, wrapped with the configured timeout.
func New(cfg config.RemoteConfig) (Client, error) {
	var c Client
	switch cfg.Type {
	case config.RemoteDir, "":
		c = NewDirClient(nil, cfg.Dir.Path)
	case config.RemoteGit:
		c = NewGitClient(cfg.Git)
	case config.RemoteNATS:
		c = NewNATSClient(cfg.NATS)
	case config.RemoteHTTP:
		c = NewHTTPClient(cfg.HTTP, nil)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported remote type %q", cfg.Type)).Build()
	}
	return WithTimeout(c, cfg.Timeout), nil
}

// Close releases resources held by c, if any.
func Close(c Client) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// WithTimeout bounds every Upload and Check call of c by d.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{inner: c, timeout: d}
}

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

func (t *timeoutClient) Upload(ctx context.Context, fileName string, content []byte, silent bool) (UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	observability.DebugContext(ctx, "Uploading backup", logfields.Remote(t.inner.Name()), slog.Int("bytes", len(content)))
	res, err := t.inner.Upload(ctx, fileName, content, silent)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.IsClassified(err) {
		err = errors.WrapError(err, errors.CategoryNetwork, "upload timed out").
			WithContext("timeout", t.timeout.String()).
			Retryable().
			Build()
	}
	if err == nil {
		observability.DebugContext(ctx, "Backup stored", logfields.Remote(t.inner.Name()), slog.String("location", res.Location))
	}
	return res, err
}

func (t *timeoutClient) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Check(ctx)
}

func (t *timeoutClient) Name() string { return t.inner.Name() }

func (t *timeoutClient) Close() error { return Close(t.inner) }

// validateUpload rejects requests no backend can accept.
func validateUpload(fileName string, content []byte) error {
	if strings.TrimSpace(fileName) == "" {
		return errors.MalformedRequestError("file name must not be empty").Build()
	}
	if strings.ContainsAny(fileName, `/\`) || strings.HasPrefix(fileName, ".") {
		return errors.MalformedRequestError(fmt.Sprintf("invalid file name %q", fileName)).
			WithContext("file_name", fileName).
			Build()
	}
	if len(content) == 0 {
		return errors.MalformedRequestError("payload must not be empty").
			WithContext("file_name", fileName).
			Build()
	}
	return nil
}
