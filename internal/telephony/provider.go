package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"power-dialer/internal/calls"
)

// Gateway is the provider-agnostic surface used by the dialer.
//
// No provider SDK calls happen outside the gateway adapters.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall fails with a *DialRejectedError when the provider refuses the request.
	PlaceCall(ctx context.Context, req calls.DialRequest) (string, error)
	HangUp(ctx context.Context, callID string) error
	ListCalls(ctx context.Context, f CallFilter) ([]calls.Call, error)

	ListNumbers(ctx context.Context) ([]PhoneNumber, error)

	SendMessage(ctx context.Context, req SendMessageRequest) (Message, error)
	ListMessages(ctx context.Context, f MessageFilter) ([]Message, error)
}

var (
	ErrDialRejected  = errors.New("telephony: dial rejected")
	ErrNotConfigured = errors.New("telephony: provider not configured")
)

// DialRejectedError is a synchronous provider-side refusal of a request.
type DialRejectedError struct {
	Code   int
	Reason string
	Status int
}

func (e *DialRejectedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("dial rejected (%d): %s", e.Code, e.Reason)
	}
	return "dial rejected: " + e.Reason
}

func (e *DialRejectedError) Is(target error) bool { return target == ErrDialRejected }

type CallFilter struct {
	To   string
	From string

	StartedAfter  *time.Time
	StartedBefore *time.Time

	Limit int
}

type PhoneNumber struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phoneNumber"`
	FriendlyName string `json:"friendlyName,omitempty"`
}

type SendMessageRequest struct {
	To        string
	From      string
	Body      string
	StatusURL string
}

type MessageFilter struct {
	To    string
	From  string
	Limit int
}

type Message struct {
	SID          string     `json:"sid"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	Body         string     `json:"body"`
	Status       string     `json:"status"`
	Direction    string     `json:"direction"`
	DateCreated  *time.Time `json:"dateCreated"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Inbound reports whether the message was received rather than sent.
func (m Message) Inbound() bool {
	return m.Direction == "inbound"
}
