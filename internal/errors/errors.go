// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps failures talking to the message store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrQueueUnavailable wraps failures talking to the durable queue.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// ValidationError is a caller mistake; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrCampaignNotFound is returned when no campaign has the given id.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCampaignAlreadyStarted rejects a start on a campaign that left draft.
type ErrCampaignAlreadyStarted struct {
	CampaignID string
	Status     string
}

func (e *ErrCampaignAlreadyStarted) Error() string {
	return fmt.Sprintf("campaign %s already started (status %s)", e.CampaignID, e.Status)
}

func NewCampaignAlreadyStarted(id, status string) error {
	return &ErrCampaignAlreadyStarted{CampaignID: id, Status: status}
}

// Store wraps err as a store outage.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Queue wraps err as a queue outage.
func Queue(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrQueueUnavailable, err)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *ErrCampaignNotFound
	return errors.As(err, &target)
}

func IsAlreadyStarted(err error) bool {
	var target *ErrCampaignAlreadyStarted
	return errors.As(err, &target)
}

// IsInfrastructure reports whether err came from the store or the queue.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrQueueUnavailable)
}
