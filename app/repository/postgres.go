package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

// Queryable is the subset of pgxpool.Pool and pgx.Tx the PostgreSQL store needs.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgTransactionRepository struct {
	db Queryable
}

func NewPgTransactionRepository(db Queryable) *PgTransactionRepository {
	return &PgTransactionRepository{db: db}
}

func (r *PgTransactionRepository) InsertIfAbsent(ctx context.Context, tx *entity.PaymentTransaction) (bool, error) {
	metadataJSON, err := serializeMetadata(tx.Metadata)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO checkout_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (session_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		tx.SessionID,
		tx.Provider,
		tx.PackageID,
		tx.AmountCents,
		tx.Currency,
		tx.UserID,
		tx.UserEmail,
		string(tx.PaymentStatus),
		tx.RawGatewayStatus,
		tx.CheckoutURL,
		metadataJSON,
		tx.NotificationStatus,
		tx.NotificationAttempts,
		tx.NotificationNextAt,
		tx.NotificationLastErr,
		tx.CreatedAt,
		tx.UpdatedAt,
		tx.CompletedAt,
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PgTransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM checkout_transactions WHERE session_id = $1`

	tx := &entity.PaymentTransaction{}
	if err := scanTransaction(r.db.QueryRow(ctx, query, sessionID), tx); errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

func (r *PgTransactionRepository) CompareAndUpdate(
	ctx context.Context,
	sessionID string,
	expected entity.PaymentStatus,
	update TransactionUpdate,
) (bool, error) {
	var (
		sets []string
		args []any
		pos  = 1
	)
	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, pos))
		args = append(args, value)
		pos++
	}

	set("payment_status", string(update.PaymentStatus))
	set("raw_gateway_status", update.RawGatewayStatus)
	set("updated_at", update.UpdatedAt)
	if update.CompletedAt != nil {
		sets = append(sets, fmt.Sprintf("completed_at = COALESCE(completed_at, $%d)", pos))
		args = append(args, *update.CompletedAt)
		pos++
	}
	if update.ScheduleNotification {
		set("notification_status", entity.NotificationPending)
		set("notification_next_at", update.UpdatedAt)
		sets = append(sets, "notification_attempts = 0", "notification_last_error = NULL")
	}

	query := fmt.Sprintf(`UPDATE checkout_transactions SET %s WHERE session_id = $%d AND payment_status = $%d`,
		strings.Join(sets, ", "), pos, pos+1)
	args = append(args, sessionID, string(expected))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PgTransactionRepository) UpdateNotification(ctx context.Context, sessionID string, delivery NotificationDelivery) error {
	query := `
		UPDATE checkout_transactions SET
			notification_status = $1,
			notification_attempts = $2,
			notification_next_at = $3,
			notification_last_error = $4,
			updated_at = $5
		WHERE session_id = $6
	`

	tag, err := r.db.Exec(ctx, query,
		delivery.Status,
		delivery.Attempts,
		delivery.NextAt,
		delivery.LastErr,
		delivery.UpdatedAt,
		sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *PgTransactionRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE payment_status IN ($1, $2)
		  AND updated_at <= $3
		ORDER BY updated_at ASC
		LIMIT $4`

	return r.list(ctx, query, append(openStatuses(), before, limit)...)
}

func (r *PgTransactionRepository) ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE payment_status IN ($1, $2)
		  AND created_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	return r.list(ctx, query, append(openStatuses(), cutoff, limit)...)
}

func (r *PgTransactionRepository) ListDueNotifications(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE notification_status = $1
		  AND notification_next_at IS NOT NULL
		  AND notification_next_at <= $2
		ORDER BY notification_next_at ASC
		LIMIT $3`

	return r.list(ctx, query, entity.NotificationPending, now, limit)
}

func (r *PgTransactionRepository) list(ctx context.Context, query string, args ...any) ([]*entity.PaymentTransaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.PaymentTransaction, 0)
	for rows.Next() {
		item := &entity.PaymentTransaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type PgTransactionEventRepository struct {
	db Queryable
}

func NewPgTransactionEventRepository(db Queryable) *PgTransactionEventRepository {
	return &PgTransactionEventRepository{db: db}
}

func (r *PgTransactionEventRepository) Create(ctx context.Context, event *entity.TransactionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO transaction_events (
			id, session_id, event_type, old_status, new_status, source, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
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

type PgWebhookReceiptRepository struct {
	db Queryable
}

func NewPgWebhookReceiptRepository(db Queryable) *PgWebhookReceiptRepository {
	return &PgWebhookReceiptRepository{db: db}
}

func (r *PgWebhookReceiptRepository) Create(ctx context.Context, receipt *entity.WebhookReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}

	query := `
		INSERT INTO webhook_receipts (
			id, session_id, provider, event_id, event_type, signature, payload_json, status, error, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		receipt.ID,
		receipt.SessionID,
		receipt.Provider,
		receipt.EventID,
		receipt.EventType,
		receipt.Signature,
		receipt.PayloadJSON,
		receipt.Status,
		receipt.Error,
		receipt.CreatedAt,
	)
	return err
}
