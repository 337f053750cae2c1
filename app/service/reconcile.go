package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
)

// maxTransitionAttempts bounds how often a lost conditional write is
// re-evaluated against the fresh record.
const maxTransitionAttempts = 3

// ApplyObservedStatus is the single transition authority shared by status
// polls, webhooks and jobs. The stored record only changes through a
// conditional write keyed on the status read just before it, so among
// concurrent callers observing the same outcome exactly one write lands and
// only that caller runs the success hooks.
func (s *CheckoutService) ApplyObservedStatus(
	ctx context.Context,
	sessionID string,
	rawStatus string,
	rawPaymentStatus string,
	source string,
) (*TransitionOutcome, error) {
	sessionID = strings.TrimSpace(sessionID)

	tx, err := s.txRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	observed := MapGatewayStatus(rawStatus, rawPaymentStatus)
	raw := RawGatewayStatus(rawStatus, rawPaymentStatus)

	for attempt := 1; ; attempt++ {
		outcome, err := s.tryTransition(ctx, tx, observed, raw, source)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, ErrStaleTransition) {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"event":      "stale_transition",
			"session_id": sessionID,
			"expected":   string(tx.PaymentStatus),
			"observed":   string(observed),
			"source":     source,
			"attempt":    attempt,
		}).Debug("Conditional update lost to a concurrent writer")

		tx, err = s.txRepo.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, ErrTransactionNotFound
		}
		if attempt >= maxTransitionAttempts {
			return noOpOutcome(tx), nil
		}
	}
}

func (s *CheckoutService) tryTransition(
	ctx context.Context,
	tx *entity.PaymentTransaction,
	observed entity.PaymentStatus,
	raw string,
	source string,
) (*TransitionOutcome, error) {
	next, ok := NextStatus(tx.PaymentStatus, observed)
	if !ok {
		return noOpOutcome(tx), nil
	}

	now := time.Now().UTC()
	update := repository.TransactionUpdate{
		PaymentStatus:    next,
		RawGatewayStatus: raw,
		UpdatedAt:        now,
	}
	paid := next == entity.PaymentStatusPaid
	if paid {
		update.CompletedAt = &now
		update.ScheduleNotification = strings.TrimSpace(s.paymentsCfg.NotifyURL) != ""
	}

	applied, err := s.txRepo.CompareAndUpdate(ctx, tx.SessionID, tx.PaymentStatus, update)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrStaleTransition
	}

	previous := tx.PaymentStatus
	updated := *tx
	updated.PaymentStatus = next
	updated.RawGatewayStatus = raw
	updated.UpdatedAt = now
	if paid {
		if updated.CompletedAt == nil {
			updated.CompletedAt = &now
		}
		if update.ScheduleNotification {
			updated.NotificationStatus = entity.NotificationPending
			updated.NotificationAttempts = 0
			updated.NotificationNextAt = &now
			updated.NotificationLastErr = nil
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": tx.SessionID,
		"old_status": string(previous),
		"new_status": string(next),
		"source":     source,
	}).Info("Transaction status updated")

	s.recordEvent(ctx, &entity.TransactionEvent{
		SessionID: tx.SessionID,
		EventType: entity.EventStatusChanged,
		OldStatus: &previous,
		NewStatus: next,
		Source:    source,
		CreatedAt: now,
	})

	outcome := &TransitionOutcome{
		Applied:     true,
		Previous:    previous,
		Current:     next,
		Transaction: &updated,
	}

	if paid && previous != entity.PaymentStatusPaid {
		s.runSuccessHooks(ctx, &updated)
		outcome.SideEffectFired = true
	}

	return outcome, nil
}

func (s *CheckoutService) runSuccessHooks(ctx context.Context, tx *entity.PaymentTransaction) {
	for _, hook := range s.hooks {
		snapshot := *tx
		hook(ctx, &snapshot)
	}
}

func (s *CheckoutService) recordPaymentSucceeded(ctx context.Context, tx *entity.PaymentTransaction) {
	s.logger.WithFields(logrus.Fields{
		"session_id":   tx.SessionID,
		"package_id":   tx.PackageID,
		"amount_cents": tx.AmountCents,
		"currency":     tx.Currency,
	}).Info("Payment succeeded")

	s.recordEvent(ctx, &entity.TransactionEvent{
		SessionID: tx.SessionID,
		EventType: entity.EventPaymentSucceeded,
		NewStatus: tx.PaymentStatus,
		Source:    "success_hook",
		CreatedAt: time.Now().UTC(),
	})
}

func noOpOutcome(tx *entity.PaymentTransaction) *TransitionOutcome {
	return &TransitionOutcome{
		Applied:     false,
		Previous:    tx.PaymentStatus,
		Current:     tx.PaymentStatus,
		Transaction: tx,
	}
}
