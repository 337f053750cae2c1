package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type TransactionEventRepository struct {
	db DBTX
}

func NewTransactionEventRepository(db DBTX) *TransactionEventRepository {
	return &TransactionEventRepository{db: db}
}

func (r *TransactionEventRepository) Create(ctx context.Context, event *entity.TransactionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO transaction_events (
			id, session_id, event_type, old_status, new_status, source, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.EventType,
		nullableStatusValue(event.OldStatus),
		string(event.NewStatus),
		event.Source,
		event.CreatedAt,
	)
	return err
}
