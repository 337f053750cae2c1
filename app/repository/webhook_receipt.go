package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type WebhookReceiptRepository struct {
	db DBTX
}

func NewWebhookReceiptRepository(db DBTX) *WebhookReceiptRepository {
	return &WebhookReceiptRepository{db: db}
}

func (r *WebhookReceiptRepository) Create(ctx context.Context, receipt *entity.WebhookReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}

	query := `
		INSERT INTO webhook_receipts (
			id, session_id, provider, event_id, event_type, signature, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		nullableStringValue(receipt.SessionID),
		receipt.Provider,
		nullableStringValue(receipt.EventID),
		receipt.EventType,
		receipt.Signature,
		receipt.PayloadJSON,
		receipt.Status,
		nullableStringValue(receipt.Error),
		receipt.CreatedAt,
	)
	return err
}
