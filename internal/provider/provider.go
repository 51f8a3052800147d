package provider

import (
	"context"
	"errors"
	"net/url"
)

// Provider sends one message to one recipient and understands the provider's
// status callbacks.
type Provider interface {
	// Send returns the provider-assigned message id. Failures are *SendError.
	Send(ctx context.Context, to, body string) (string, error)
	// ParseCallback never fails; missing fields come back empty.
	ParseCallback(values url.Values) CallbackEvent
}

// CallbackEvent is a normalized delivery-status callback.
type CallbackEvent struct {
	ProviderMessageID string
	Status            string
	From              string
	To                string
	ErrorCode         string
}

// SendError is a failed send. Retryable marks transient failures (network,
// throttling, provider outage) that may succeed on another attempt.
type SendError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *SendError) Error() string {
	return e.Detail
}

// NotConfigured is returned by a provider started without credentials.
func NotConfigured() *SendError {
	return &SendError{Code: "PROVIDER_NOT_CONFIGURED", Detail: "provider client not initialized"}
}

// IsRetryable reports whether err is a *SendError marked retryable.
func IsRetryable(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Retryable
}

// Detail is the text recorded on a failed message.
func Detail(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Detail
	}
	return err.Error()
}
