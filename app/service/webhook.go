package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
)

const (
	WebhookStatusProcessed = "processed"
	WebhookStatusIgnored   = "ignored"
)

type handleWebhookRequest interface {
	GetProvider() string
	GetSignature() string
	GetPayload() string
}

type WebhookResult struct {
	EventType string
	SessionID string
	Status    string
	Outcome   *TransitionOutcome
}

// HandleWebhook verifies a gateway push and applies the reported status.
// Payloads failing verification are recorded and never reach the store.
func (s *CheckoutService) HandleWebhook(ctx context.Context, req handleWebhookRequest) (*WebhookResult, error) {
	providerCode := strings.ToLower(strings.TrimSpace(req.GetProvider()))
	providerClient, err := s.providerReg.Get(providerCode)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	signature := strings.TrimSpace(req.GetSignature())
	if signature == "" {
		s.persistReceipt(ctx, req, nil, entity.WebhookReceiptRejected, "missing signature")
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidWebhookSignature)
	}

	event, err := providerClient.VerifyAndParseWebhook(ctx, []byte(req.GetPayload()), signature)
	if err != nil {
		s.persistReceipt(ctx, req, nil, entity.WebhookReceiptRejected, fmt.Sprintf("webhook validation failed: %v", err))
		if errors.Is(err, provider.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if event == nil {
		s.persistReceipt(ctx, req, nil, entity.WebhookReceiptRejected, "webhook payload could not be parsed")
		return nil, fmt.Errorf("%w: empty webhook event", ErrInvalidRequest)
	}

	s.logger.WithFields(logrus.Fields{
		"provider":   providerCode,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"session_id": event.SessionID,
	}).Info("Webhook received")

	result := &WebhookResult{
		EventType: event.EventType,
		SessionID: event.SessionID,
		Status:    WebhookStatusIgnored,
	}

	if event.SessionID == "" {
		s.persistReceipt(ctx, req, event, entity.WebhookReceiptProcessed, "")
		return result, nil
	}

	outcome, err := s.ApplyObservedStatus(ctx, event.SessionID, event.RawStatus, event.RawPaymentStatus, sourceWebhook)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			// Acknowledged so the gateway stops redelivering; the receipt keeps
			// the event for investigation.
			s.persistReceipt(ctx, req, event, entity.WebhookReceiptRejected, "transaction not found")
			s.logger.WithFields(logrus.Fields{
				"provider":   providerCode,
				"event_id":   event.EventID,
				"session_id": event.SessionID,
			}).Warn("Webhook references unknown session")
			return result, nil
		}
		return nil, err
	}

	s.persistReceipt(ctx, req, event, entity.WebhookReceiptProcessed, "")

	result.Status = WebhookStatusProcessed
	result.Outcome = outcome
	return result, nil
}

func (s *CheckoutService) persistReceipt(
	ctx context.Context,
	req handleWebhookRequest,
	event *provider.WebhookEvent,
	status int32,
	reason string,
) {
	receipt := &entity.WebhookReceipt{
		Provider:    strings.ToLower(strings.TrimSpace(req.GetProvider())),
		Signature:   truncate(strings.TrimSpace(req.GetSignature()), 512),
		PayloadJSON: req.GetPayload(),
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	if event != nil {
		receipt.EventType = event.EventType
		receipt.EventID = normalizeOptionalString(event.EventID)
		receipt.SessionID = normalizeOptionalString(event.SessionID)
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, 1024)
		receipt.Error = &trimmed
	}

	if err := s.receiptRepo.Create(ctx, receipt); err != nil {
		s.logger.WithError(err).WithField("provider", receipt.Provider).Warn("Failed to record webhook receipt")
	}
}
