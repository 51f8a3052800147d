package provider

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type fakeCreator struct {
	calls  []*twilioApi.CreateMessageParams
	sid    string
	err    error
	noBody bool
	delay  time.Duration
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.calls = append(f.calls, params)
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	if f.noBody {
		return &twilioApi.ApiV2010Message{}, nil
	}
	sid := f.sid
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSendUnconfigured(t *testing.T) {
	tw := NewTwilio(TwilioConfig{From: "+1000", Channel: "whatsapp"})
	assert.False(t, tw.Configured())

	sid, err := tw.Send(context.Background(), "+1555", "Hi!")
	assert.Empty(t, sid)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "provider client not initialized", se.Detail)
	assert.False(t, se.Retryable)
}

func TestTwilioSendBuildsWhatsAppMessage(t *testing.T) {
	fake := &fakeCreator{sid: "SM123"}
	tw := NewTwilio(TwilioConfig{From: "whatsapp:+1000", Channel: "whatsapp", PublicURL: "https://example.com/"})
	tw.api = fake

	sid, err := tw.Send(context.Background(), "+1555", "Hi!")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)

	require.Len(t, fake.calls, 1)
	params := fake.calls[0]
	assert.Equal(t, "whatsapp:+1555", *params.To)
	assert.Equal(t, "whatsapp:+1000", *params.From)
	assert.Equal(t, "Hi!", *params.Body)
	assert.Equal(t, "https://example.com/webhook", *params.StatusCallback)
}

func TestTwilioSendPlainSMS(t *testing.T) {
	fake := &fakeCreator{sid: "SM1"}
	tw := NewTwilio(TwilioConfig{From: "+1000"})
	tw.api = fake

	_, err := tw.Send(context.Background(), "+1555", "Hi!")
	require.NoError(t, err)
	assert.Equal(t, "+1555", *fake.calls[0].To)
	assert.Nil(t, fake.calls[0].StatusCallback)
}

func TestTwilioSendClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"invalid recipient", &client.TwilioRestError{Code: 21211, Status: 400, Message: "Invalid 'To' Phone Number"}, "21211", false},
		{"throttled", &client.TwilioRestError{Code: 20429, Status: 429, Message: "Too Many Requests"}, "20429", true},
		{"outage", &client.TwilioRestError{Code: 20500, Status: 503, Message: "Service Unavailable"}, "20500", true},
		{"transport", errors.New("dial tcp: connection refused"), "NETWORK", true},
		{"request timeout", &url.Error{Op: "Post", URL: "https://api.twilio.com", Err: context.DeadlineExceeded}, "TIMEOUT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := NewTwilio(TwilioConfig{})
			tw.api = &fakeCreator{err: tt.err}

			_, err := tw.Send(context.Background(), "+1555", "Hi!")
			var se *SendError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestTwilioSendMissingSid(t *testing.T) {
	tw := NewTwilio(TwilioConfig{})
	tw.api = &fakeCreator{noBody: true}

	_, err := tw.Send(context.Background(), "+1555", "Hi!")
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestParseTwilioCallback(t *testing.T) {
	values := url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
		"From":          {"whatsapp:+1000"},
		"To":            {"whatsapp:+1555"},
	}
	ev := ParseTwilioCallback(values)
	assert.Equal(t, CallbackEvent{
		ProviderMessageID: "SM123",
		Status:            "delivered",
		From:              "whatsapp:+1000",
		To:                "whatsapp:+1555",
	}, ev)

	assert.Equal(t, CallbackEvent{}, ParseTwilioCallback(nil))
	assert.Equal(t, CallbackEvent{Status: "x"}, ParseTwilioCallback(url.Values{"MessageStatus": {"x"}, "junk": {"1"}}))
}

func TestTwilioSlowSendIsReportedOnce(t *testing.T) {
	fake := &fakeCreator{sid: "SM9", delay: 50 * time.Millisecond}
	tw := NewTwilio(TwilioConfig{From: "+1000"})
	tw.api = fake

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sid, err := NewRetrying(tw, RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}, zap.NewNop()).
		Send(ctx, "+1555", "Hi!")
	require.NoError(t, err)
	assert.Equal(t, "SM9", sid)
	assert.Len(t, fake.calls, 1)
}

func TestTwilioSendSkipsCancelledContext(t *testing.T) {
	fake := &fakeCreator{sid: "SM9"}
	tw := NewTwilio(TwilioConfig{})
	tw.api = fake

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tw.Send(ctx, "+1555", "Hi!")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls)
}

func TestRestClientTimeout(t *testing.T) {
	c := restClient(TwilioConfig{AccountSID: "AC1", AuthToken: "tok", Timeout: 15 * time.Second})
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 15*time.Second, c.HTTPClient.Timeout)
	assert.Equal(t, "AC1", c.AccountSid())

	assert.Nil(t, restClient(TwilioConfig{AccountSID: "AC1", AuthToken: "tok"}).HTTPClient)
}
