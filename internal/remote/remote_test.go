package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

func TestValidateUpload(t *testing.T) {
	require.NoError(t, validateUpload("memo-calendar-auto-2024-01-01-000000.json", []byte("{}")))

	for _, tc := range []struct {
		name    string
		content []byte
	}{
		{"", []byte("{}")},
		{"a/b.json", []byte("{}")},
		{".hidden.json", []byte("{}")},
		{"ok.json", nil},
	} {
		err := validateUpload(tc.name, tc.content)
		require.True(t, errors.HasCategory(err, errors.CategoryMalformedRequest), tc.name)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cases := map[config.RemoteType]string{
		config.RemoteDir:  "dir",
		config.RemoteGit:  "git",
		config.RemoteNATS: "nats",
		config.RemoteHTTP: "http",
	}
	for typ, name := range cases {
		c, err := New(config.RemoteConfig{Type: typ, Timeout: time.Second})
		require.NoError(t, err)
		require.Equal(t, name, c.Name())
		require.NoError(t, Close(c))
	}

	_, err := New(config.RemoteConfig{Type: "ftp"})
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

type blockingClient struct{}

func (blockingClient) Upload(ctx context.Context, _ string, _ []byte, _ bool) (UploadResult, error) {
	<-ctx.Done()
	return UploadResult{}, ctx.Err()
}

func (blockingClient) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingClient) Name() string { return "blocking" }

func TestWithTimeoutClassifiesDeadline(t *testing.T) {
	c := WithTimeout(blockingClient{}, 20*time.Millisecond)
	require.Equal(t, "blocking", c.Name())

	start := time.Now()
	_, err := c.Upload(t.Context(), "a.json", []byte("{}"), true)
	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, errors.HasCategory(err, errors.CategoryNetwork))
	ce, _ := errors.AsClassified(err)
	require.True(t, ce.CanRetry())

	require.ErrorIs(t, c.Check(t.Context()), context.DeadlineExceeded)
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	var c Client = blockingClient{}
	require.Equal(t, c, WithTimeout(c, 0))
}
