package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
)

// RunReconcileBatch polls the gateway for open transactions nobody has
// looked at recently.
func (s *CheckoutService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.txRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil || tx.PaymentStatus.IsTerminal() {
			continue
		}

		gateway, err := s.fetchSessionStatus(ctx, tx)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if _, err := s.ApplyObservedStatus(ctx, tx.SessionID, gateway.RawStatus, gateway.RawPaymentStatus, sourceReconcile); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *CheckoutService) RunExpirePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.txRepo.ListExpiredOpen(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil || tx.PaymentStatus.IsTerminal() {
			continue
		}

		if err := s.expireTimedOut(ctx, tx); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// expireTimedOut settles a timed-out transaction from the gateway's view of
// it. A session still open at the gateway is closed there first, so a payment
// that landed before the cutoff is recorded as paid and never overwritten.
func (s *CheckoutService) expireTimedOut(ctx context.Context, tx *entity.PaymentTransaction) error {
	gateway, err := s.fetchSessionStatus(ctx, tx)
	if err != nil {
		return err
	}

	if strings.EqualFold(strings.TrimSpace(gateway.RawStatus), gatewayStatusOpen) &&
		!MapGatewayStatus(gateway.RawStatus, gateway.RawPaymentStatus).IsTerminal() {
		gateway, err = s.expireGatewaySession(ctx, tx)
		if err != nil {
			return err
		}
	}

	_, err = s.ApplyObservedStatus(ctx, tx.SessionID, gateway.RawStatus, gateway.RawPaymentStatus, sourceExpire)
	return err
}

func (s *CheckoutService) RunDispatchNotificationsBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.txRepo.ListDueNotifications(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, tx, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *CheckoutService) dispatchNotification(ctx context.Context, tx *entity.PaymentTransaction, now time.Time) error {
	notifyURL := strings.TrimSpace(s.paymentsCfg.NotifyURL)
	if notifyURL == "" {
		errMsg := "notify url is not configured"
		return s.txRepo.UpdateNotification(ctx, tx.SessionID, repository.NotificationDelivery{
			Status:    entity.NotificationFailed,
			Attempts:  tx.NotificationAttempts,
			LastErr:   &errMsg,
			UpdatedAt: now,
		})
	}

	body, err := json.Marshal(mapper.TransactionToNotification(tx))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, bytes.NewReader(body))
	if err != nil {
		return s.recordDispatchFailure(ctx, tx, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", tx.SessionID)
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.notifyHTTP.Do(req)
	if err != nil {
		return s.recordDispatchFailure(ctx, tx, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordDispatchFailure(ctx, tx, now, fmt.Errorf("notify endpoint returned status=%d", resp.StatusCode))
	}

	err = s.txRepo.UpdateNotification(ctx, tx.SessionID, repository.NotificationDelivery{
		Status:    entity.NotificationSuccess,
		Attempts:  tx.NotificationAttempts + 1,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}

	s.recordEvent(ctx, &entity.TransactionEvent{
		SessionID: tx.SessionID,
		EventType: entity.EventNotificationDispatched,
		NewStatus: tx.PaymentStatus,
		Source:    "notify_job",
		CreatedAt: now,
	})

	return nil
}

func (s *CheckoutService) recordDispatchFailure(ctx context.Context, tx *entity.PaymentTransaction, now time.Time, dispatchErr error) error {
	attempts := tx.NotificationAttempts + 1
	trimmed := truncate(dispatchErr.Error(), 1024)
	delivery := repository.NotificationDelivery{
		Attempts:  attempts,
		LastErr:   &trimmed,
		UpdatedAt: now,
	}

	maxAttempts := s.paymentsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if attempts >= maxAttempts {
		delivery.Status = entity.NotificationFailed
	} else {
		retryInterval := s.paymentsCfg.NotifyRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		delivery.Status = entity.NotificationPending
		delivery.NextAt = &next
	}

	if err := s.txRepo.UpdateNotification(ctx, tx.SessionID, delivery); err != nil {
		return err
	}

	s.recordEvent(ctx, &entity.TransactionEvent{
		SessionID: tx.SessionID,
		EventType: entity.EventNotificationDispatchFailed,
		NewStatus: tx.PaymentStatus,
		Source:    "notify_job",
		CreatedAt: now,
	})

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
