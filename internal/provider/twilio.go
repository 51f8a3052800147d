package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST API the adapter calls.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sender identity, with or without the channel prefix.
	From string
	// Channel prefixes addresses ("whatsapp" gives "whatsapp:+1555").
	// Empty sends plain SMS.
	Channel string
	// PublicURL is the externally reachable base of this service; the status
	// callback points at PublicURL + "/webhook".
	PublicURL string
	// Timeout bounds each HTTP request to the Messages API.
	Timeout time.Duration
}

// Twilio is the Provider backed by Twilio's Messages API.
type Twilio struct {
	api         messageCreator
	from        string
	channel     string
	callbackURL string
}

// NewTwilio builds the adapter. Without credentials it still constructs, but
// every Send fails with NotConfigured and no request is made.
func NewTwilio(cfg TwilioConfig) *Twilio {
	t := &Twilio{
		from:    cfg.From,
		channel: cfg.Channel,
	}
	if cfg.PublicURL != "" {
		t.callbackURL = strings.TrimRight(cfg.PublicURL, "/") + "/webhook"
	}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Client: restClient(cfg),
		})
		t.api = rest.Api
	}
	return t
}

func restClient(cfg TwilioConfig) *client.Client {
	c := &client.Client{Credentials: client.NewCredentials(cfg.AccountSID, cfg.AuthToken)}
	c.SetAccountSid(cfg.AccountSID)
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return c
}

func (t *Twilio) Configured() bool {
	return t.api != nil
}

// Send makes one Messages API request. The SDK takes no context, so the
// request is bounded by TwilioConfig.Timeout and ctx is only checked before it
// starts; once issued, its outcome is always reported.
func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	if t.api == nil {
		return "", NotConfigured()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.address(to))
	if t.from != "" {
		params.SetFrom(t.address(t.from))
	}
	params.SetBody(body)
	if t.callbackURL != "" {
		params.SetStatusCallback(t.callbackURL)
	}

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return "", classify(err)
	}
	if msg == nil || msg.Sid == nil || *msg.Sid == "" {
		return "", &SendError{Code: "NO_SID", Detail: "provider response carried no message sid"}
	}
	return *msg.Sid, nil
}

func (t *Twilio) ParseCallback(values url.Values) CallbackEvent {
	return ParseTwilioCallback(values)
}

// ParseTwilioCallback reads Twilio's status callback form fields.
func ParseTwilioCallback(values url.Values) CallbackEvent {
	return CallbackEvent{
		ProviderMessageID: values.Get("MessageSid"),
		Status:            values.Get("MessageStatus"),
		From:              values.Get("From"),
		To:                values.Get("To"),
		ErrorCode:         values.Get("ErrorCode"),
	}
}

func (t *Twilio) address(number string) string {
	if t.channel == "" || strings.HasPrefix(number, t.channel+":") {
		return number
	}
	return t.channel + ":" + number
}

// classify maps an SDK error onto a SendError. Throttling and 5xx answers are
// transient and every other API error is terminal. A request that timed out
// may have been accepted, so it is terminal too; other transport errors retry.
func classify(err error) *SendError {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return &SendError{
			Code:      strconv.Itoa(restErr.Code),
			Detail:    fmt.Sprintf("%d: %s", restErr.Code, restErr.Message),
			Retryable: restErr.Status == http.StatusTooManyRequests || restErr.Status >= http.StatusInternalServerError,
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &SendError{Code: "TIMEOUT", Detail: err.Error()}
	}
	return &SendError{Code: "NETWORK", Detail: err.Error(), Retryable: true}
}

var _ Provider = (*Twilio)(nil)
