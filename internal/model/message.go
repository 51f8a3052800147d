// internal/model/message.go
package model

import "time"

// MessageStatus is an open set: the worker assigns the constants below and the
// provider may report any other value through its callbacks.
type MessageStatus string

const (
	StatusQueued        MessageStatus = "queued"
	StatusSending       MessageStatus = "sending"
	StatusSent          MessageStatus = "sent"
	StatusFailed        MessageStatus = "failed"
	StatusSkippedOptOut MessageStatus = "skipped_opt_out"

	StatusAccepted    MessageStatus = "accepted"
	StatusScheduled   MessageStatus = "scheduled"
	StatusDelivered   MessageStatus = "delivered"
	StatusUndelivered MessageStatus = "undelivered"
	StatusRead        MessageStatus = "read"
)

// ErrorCodeConsentRequired is recorded on messages skipped for missing opt-in.
const ErrorCodeConsentRequired = "CONSENT_REQUIRED"

type Message struct {
	MessageID   string        `bson:"message_id" json:"message_id"`
	CampaignID  string        `bson:"campaign_id" json:"campaign_id"`
	ClientPhone string        `bson:"client_phone" json:"client_phone"`
	Status      MessageStatus `bson:"status" json:"status"`
	ProviderSID string        `bson:"provider_sid,omitempty" json:"provider_sid,omitempty"`
	ErrorCode   *string       `bson:"error_code,omitempty" json:"error_code,omitempty"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"updated_at"`
}

// Pending reports whether the worker still owes this message a send attempt.
// A message left in "sending" by a crashed worker is retried.
func (m *Message) Pending() bool {
	return m.Status == StatusQueued || m.Status == StatusSending
}

// MessageUpdate is a partial update applied by the worker or the reconciler.
type MessageUpdate struct {
	Status      MessageStatus
	ProviderSID string // applied when non-empty

	// ErrorCode is applied only when SetErrorCode is true; a nil value clears it.
	ErrorCode    *string
	SetErrorCode bool

	// UnlessStatusIn skips the update when the stored status is one of these.
	UnlessStatusIn []MessageStatus
}

// StatusUpdate returns an update that only moves the status.
func StatusUpdate(status MessageStatus) MessageUpdate {
	return MessageUpdate{Status: status}
}

// WithErrorCode sets (or, with nil, clears) the error code.
func (u MessageUpdate) WithErrorCode(code *string) MessageUpdate {
	u.ErrorCode = code
	u.SetErrorCode = true
	return u
}

func (u MessageUpdate) WithError(code string) MessageUpdate {
	return u.WithErrorCode(&code)
}

func (u MessageUpdate) WithProviderSID(sid string) MessageUpdate {
	u.ProviderSID = sid
	return u
}

// Blocked reports whether the guard in UnlessStatusIn rejects current.
func (u MessageUpdate) Blocked(current MessageStatus) bool {
	for _, s := range u.UnlessStatusIn {
		if s == current {
			return true
		}
	}
	return false
}

var statusRank = map[MessageStatus]int{
	StatusQueued:      1,
	StatusAccepted:    1,
	StatusScheduled:   1,
	StatusSending:     2,
	StatusSent:        3,
	StatusDelivered:   4,
	StatusUndelivered: 4,
	StatusFailed:      4,
	StatusRead:        5,
}

// StatusesAbove lists the known statuses that outrank s in the delivery
// lifecycle. Unknown statuses have no rank and outrank nothing.
func StatusesAbove(s MessageStatus) []MessageStatus {
	rank, ok := statusRank[s]
	if !ok {
		return nil
	}
	var above []MessageStatus
	for _, candidate := range []MessageStatus{
		StatusQueued, StatusAccepted, StatusScheduled, StatusSending, StatusSent,
		StatusDelivered, StatusUndelivered, StatusFailed, StatusRead,
	} {
		if statusRank[candidate] > rank {
			above = append(above, candidate)
		}
	}
	return above
}
