package entity

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is legal from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusPending,
		PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

const (
	NotificationNone    int32 = 0
	NotificationPending int32 = 1
	NotificationSuccess int32 = 10
	NotificationFailed  int32 = 20
)

type PaymentTransaction struct {
	SessionID string
	Provider  string

	PackageID   string
	AmountCents int64
	Currency    string

	UserID    *string
	UserEmail *string

	PaymentStatus    PaymentStatus
	RawGatewayStatus string

	CheckoutURL string
	Metadata    map[string]string

	NotificationStatus   int32
	NotificationAttempts int32
	NotificationNextAt   *time.Time
	NotificationLastErr  *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}
