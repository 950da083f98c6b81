package remote

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/config"
	ferrors "git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

func TestNATSClientDefaults(t *testing.T) {
	c := NewNATSClient(config.NATSRemoteConfig{URL: "nats://127.0.0.1:4222"})
	require.Equal(t, config.DefaultNATSBucket, c.cfg.Bucket)
	require.Equal(t, config.DefaultNATSSubject, c.cfg.Subject)
	require.NoError(t, c.Close())
}

func TestNATSClientNotConnectedWithoutURL(t *testing.T) {
	c := NewNATSClient(config.NATSRemoteConfig{})
	_, err := c.Upload(t.Context(), "a.json", []byte("{}"), false)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotConnected))
}

func TestNATSClientUnreachableIsRetryable(t *testing.T) {
	c := WithTimeout(NewNATSClient(config.NATSRemoteConfig{URL: "nats://127.0.0.1:1"}), 2*time.Second)
	defer Close(c)

	err := c.Check(t.Context())
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
	ce, _ := ferrors.AsClassified(err)
	require.True(t, ce.CanRetry())
}

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		err      error
		category ferrors.ErrorCategory
	}{
		{nats.ErrAuthorization, ferrors.CategoryAuth},
		{nats.ErrAuthExpired, ferrors.CategoryAuth},
		{jetstream.ErrJetStreamNotEnabled, ferrors.CategoryNotConnected},
		{jetstream.ErrInvalidKey, ferrors.CategoryMalformedRequest},
		{nats.ErrMaxPayload, ferrors.CategoryMalformedRequest},
		{nats.ErrNoServers, ferrors.CategoryNetwork},
		{nats.ErrTimeout, ferrors.CategoryNetwork},
		{errors.New("something odd"), ferrors.CategoryNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := classifyNATSError(tt.err, "put")
			require.Equal(t, tt.category, ferrors.GetCategory(err))
			require.ErrorIs(t, err, tt.err)
		})
	}
}
