package provider

import (
	"context"
	"errors"
)

const CodeStripe = "stripe"

// ErrInvalidSignature is returned by VerifyAndParseWebhook when the payload
// signature is missing or does not match.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type CreateSessionInput struct {
	AmountCents int64
	Currency    string

	ProductName        string
	ProductDescription string

	CustomerEmail string
	Metadata      map[string]string

	SuccessURL string
	CancelURL  string
}

type Session struct {
	SessionID   string
	RedirectURL string
}

type SessionStatus struct {
	RawStatus        string
	RawPaymentStatus string
	AmountTotal      int64
	Currency         string
	Metadata         map[string]string
}

type WebhookEvent struct {
	EventID   string
	EventType string

	// SessionID is empty for events that do not reference a checkout session.
	SessionID        string
	RawStatus        string
	RawPaymentStatus string
}

type Provider interface {
	Code() string
	// SessionIDPlaceholder is substituted by the gateway with the real session
	// id when redirecting the payer back to the success url.
	SessionIDPlaceholder() string
	CreateSession(ctx context.Context, input *CreateSessionInput) (*Session, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
	// ExpireSession closes an open session at the gateway so it can no longer
	// be paid, and returns the session state after the call.
	ExpireSession(ctx context.Context, sessionID string) (*SessionStatus, error)
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
