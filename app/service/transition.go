package service

import (
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// TransitionOutcome is the result of applying one observed gateway status.
// Applied is false for every no-op: same state, terminal state or a lost race.
type TransitionOutcome struct {
	Applied         bool
	SideEffectFired bool
	Previous        entity.PaymentStatus
	Current         entity.PaymentStatus
	Transaction     *entity.PaymentTransaction
}

// MapGatewayStatus folds the provider-native session and payment statuses into
// a domain state. Anything unresolved maps to pending.
func MapGatewayStatus(rawStatus, rawPaymentStatus string) entity.PaymentStatus {
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	paymentStatus := strings.ToLower(strings.TrimSpace(rawPaymentStatus))

	switch {
	case paymentStatus == "paid", paymentStatus == "no_payment_required":
		return entity.PaymentStatusPaid
	case status == "expired":
		return entity.PaymentStatusExpired
	case status == "cancelled", status == "canceled":
		return entity.PaymentStatusCancelled
	case paymentStatus == "failed", status == "failed":
		return entity.PaymentStatusFailed
	default:
		return entity.PaymentStatusPending
	}
}

// NextStatus returns the state to write for an observed state, and false when
// the observation must be ignored.
func NextStatus(current, observed entity.PaymentStatus) (entity.PaymentStatus, bool) {
	if current.IsTerminal() {
		return current, false
	}
	if observed == current || !observed.Valid() {
		return current, false
	}
	return observed, true
}

// RawGatewayStatus is the diagnostic string stored next to the domain state.
func RawGatewayStatus(rawStatus, rawPaymentStatus string) string {
	status := strings.TrimSpace(rawStatus)
	paymentStatus := strings.TrimSpace(rawPaymentStatus)

	switch {
	case status == "":
		return paymentStatus
	case paymentStatus == "":
		return status
	default:
		return status + "/" + paymentStatus
	}
}
