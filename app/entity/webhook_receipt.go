package entity

import "time"

const (
	WebhookReceiptProcessed int32 = 10
	WebhookReceiptRejected  int32 = 20
)

type WebhookReceipt struct {
	ID string

	SessionID *string

	Provider    string
	EventID     *string
	EventType   string
	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
}
