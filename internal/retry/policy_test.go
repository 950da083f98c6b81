package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, config.RetryFixed, p.Mode)
	require.Equal(t, 5*time.Second, p.Delay)
	require.Equal(t, 3, p.MaxAttempts)
	require.NoError(t, p.Validate())
}

func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryConfig{Mode: config.RetryLinear, Delay: 5 * time.Second, MaxDelay: 2 * time.Second, MaxAttempts: 5})
	// delay > max -> clamped
	require.Equal(t, 2*time.Second, p.Delay)
	require.Equal(t, 2*time.Second, p.MaxDelay)
	require.Equal(t, config.RetryLinear, p.Mode)
	require.Equal(t, 5, p.MaxAttempts)

	p = NewPolicy(config.RetryConfig{Mode: "weird"})
	require.Equal(t, DefaultPolicy(), p)
}

func TestBackOffModes(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name string
		mode config.RetryMode
		want []time.Duration
	}{
		{"fixed", config.RetryFixed, []time.Duration{100 * ms, 100 * ms, 100 * ms, 100 * ms}},
		{"linear", config.RetryLinear, []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
		{"exponential", config.RetryExponential, []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(config.RetryConfig{Mode: tt.mode, Delay: 100 * ms, MaxDelay: 250 * ms, MaxAttempts: 5})
			b := p.NewBackOff()
			for i, want := range tt.want {
				require.Equal(t, want, b.NextBackOff(), "call %d", i+1)
			}
			b.Reset()
			require.Equal(t, tt.want[0], b.NextBackOff())
		})
	}
}

func TestAllows(t *testing.T) {
	p := DefaultPolicy()
	require.True(t, p.Allows(1))
	require.True(t, p.Allows(2))
	require.False(t, p.Allows(3))
}

func TestValidate(t *testing.T) {
	require.Error(t, Policy{Delay: 0, MaxDelay: time.Second, MaxAttempts: 1}.Validate())
	require.Error(t, Policy{Delay: time.Second, MaxDelay: 0, MaxAttempts: 1}.Validate())
	require.Error(t, Policy{Delay: time.Second, MaxDelay: time.Second, MaxAttempts: 0}.Validate())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	require.Nil(t, Classify(nil))

	network := errors.NetworkError("502 from remote").Build()
	require.Same(t, network, Classify(fmt.Errorf("upload: %w", network)))
	require.True(t, IsRetryable(network))

	require.False(t, IsRetryable(errors.AuthError("token expired").Build()))
	require.False(t, IsRetryable(errors.NotConnectedError("no session").Build()))
	require.False(t, IsRetryable(errors.MalformedRequestError("empty payload").Build()))

	ce := Classify(fmt.Errorf("dial: %w", timeoutErr{}))
	require.Equal(t, errors.CategoryNetwork, ce.Category())
	require.True(t, IsRetryable(context.DeadlineExceeded))

	ce = Classify(stderrors.New("nil map write"))
	require.Equal(t, errors.CategoryInternal, ce.Category())
	require.False(t, ce.CanRetry())

	require.False(t, IsRetryable(context.Canceled))
}
