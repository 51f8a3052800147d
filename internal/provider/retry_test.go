package provider

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedProvider returns errs in order, then succeeds with sid.
type scriptedProvider struct {
	errs  []error
	sid   string
	calls int
}

func (p *scriptedProvider) Send(ctx context.Context, to, body string) (string, error) {
	p.calls++
	if p.calls <= len(p.errs) {
		return "", p.errs[p.calls-1]
	}
	return p.sid, nil
}

func (p *scriptedProvider) ParseCallback(values url.Values) CallbackEvent {
	return ParseTwilioCallback(values)
}

var fastPolicy = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{&SendError{Code: "NETWORK", Detail: "reset", Retryable: true}},
		sid:  "SM1",
	}
	sid, err := NewRetrying(p, fastPolicy, zap.NewNop()).Send(context.Background(), "+1555", "Hi!")
	require.NoError(t, err)
	assert.Equal(t, "SM1", sid)
	assert.Equal(t, 2, p.calls)
}

func TestRetryingStopsOnTerminalError(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{&SendError{Code: "21211", Detail: "21211: invalid number"}},
		sid:  "SM1",
	}
	_, err := NewRetrying(p, fastPolicy, zap.NewNop()).Send(context.Background(), "+1555", "Hi!")
	assert.EqualError(t, err, "21211: invalid number")
	assert.Equal(t, 1, p.calls)
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	transient := &SendError{Code: "NETWORK", Detail: "reset", Retryable: true}
	p := &scriptedProvider{errs: []error{transient, transient, transient, transient}, sid: "SM1"}

	_, err := NewRetrying(p, fastPolicy, zap.NewNop()).Send(context.Background(), "+1555", "Hi!")
	assert.Error(t, err)
	assert.Equal(t, "reset", Detail(err))
	assert.Equal(t, 3, p.calls)
}

func TestRetryingSingleAttempt(t *testing.T) {
	p := &scriptedProvider{errs: []error{&SendError{Detail: "reset", Retryable: true}}}
	_, err := NewRetrying(p, RetryPolicy{}, zap.NewNop()).Send(context.Background(), "+1555", "Hi!")
	assert.Error(t, err)
	assert.Equal(t, 1, p.calls)
}
