package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-messaging/internal/metrics"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Retrying wraps a Provider and retries retryable send failures with
// exponential backoff. Terminal failures return after the first attempt.
type Retrying struct {
	next   Provider
	policy RetryPolicy
	log    *zap.Logger
}

func NewRetrying(next Provider, policy RetryPolicy, log *zap.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{next: next, policy: policy, log: log}
}

func (r *Retrying) Send(ctx context.Context, to, body string) (string, error) {
	var sid string
	operation := func() error {
		s, err := r.next.Send(ctx, to, body)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		sid = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	b.MaxElapsedTime = 0 // bounded by attempts instead

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		metrics.SendRetries.Inc()
		r.log.Warn("send failed, retrying",
			zap.String("phone", to),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return sid, nil
}

func (r *Retrying) ParseCallback(values url.Values) CallbackEvent {
	return r.next.ParseCallback(values)
}

var _ Provider = (*Retrying)(nil)
