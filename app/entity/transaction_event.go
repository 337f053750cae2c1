package entity

import "time"

const (
	EventTransactionCreated         = "transaction_created"
	EventStatusChanged              = "status_changed"
	EventPaymentSucceeded           = "payment_succeeded"
	EventNotificationDispatched     = "notification_dispatched"
	EventNotificationDispatchFailed = "notification_dispatch_failed"
)

type TransactionEvent struct {
	ID string

	SessionID string
	EventType string

	OldStatus *PaymentStatus
	NewStatus PaymentStatus

	Source string

	CreatedAt time.Time
}
