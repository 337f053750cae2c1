package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

const transactionColumns = `
	session_id, provider, package_id, amount_cents, currency, user_id, user_email,
	payment_status, raw_gateway_status, checkout_url, metadata_json,
	notification_status, notification_attempts, notification_next_at, notification_last_error,
	created_at, updated_at, completed_at`

// TransactionRepository is the MySQL transaction store.
type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) InsertIfAbsent(ctx context.Context, tx *entity.PaymentTransaction) (bool, error) {
	metadataJSON, err := serializeMetadata(tx.Metadata)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO checkout_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		tx.SessionID,
		tx.Provider,
		tx.PackageID,
		tx.AmountCents,
		tx.Currency,
		nullableStringValue(tx.UserID),
		nullableStringValue(tx.UserEmail),
		string(tx.PaymentStatus),
		tx.RawGatewayStatus,
		tx.CheckoutURL,
		metadataJSON,
		tx.NotificationStatus,
		tx.NotificationAttempts,
		nullableTimeValue(tx.NotificationNextAt),
		nullableStringValue(tx.NotificationLastErr),
		tx.CreatedAt,
		tx.UpdatedAt,
		nullableTimeValue(tx.CompletedAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *TransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM checkout_transactions WHERE session_id = ? LIMIT 1`

	tx := &entity.PaymentTransaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, sessionID), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

// CompareAndUpdate writes update only while the stored status still equals
// expected. A false result means another writer moved the record first.
func (r *TransactionRepository) CompareAndUpdate(
	ctx context.Context,
	sessionID string,
	expected entity.PaymentStatus,
	update TransactionUpdate,
) (bool, error) {
	sets := []string{"payment_status = ?", "raw_gateway_status = ?", "updated_at = ?"}
	args := []interface{}{string(update.PaymentStatus), update.RawGatewayStatus, update.UpdatedAt}

	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
		args = append(args, *update.CompletedAt)
	}
	if update.ScheduleNotification {
		sets = append(sets,
			"notification_status = ?",
			"notification_attempts = 0",
			"notification_next_at = ?",
			"notification_last_error = NULL",
		)
		args = append(args, entity.NotificationPending, update.UpdatedAt)
	}

	query := `UPDATE checkout_transactions SET ` + strings.Join(sets, ", ") + `
		WHERE session_id = ? AND payment_status = ?`
	args = append(args, sessionID, string(expected))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *TransactionRepository) UpdateNotification(ctx context.Context, sessionID string, delivery NotificationDelivery) error {
	query := `
		UPDATE checkout_transactions SET
			notification_status = ?,
			notification_attempts = ?,
			notification_next_at = ?,
			notification_last_error = ?,
			updated_at = ?
		WHERE session_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		delivery.Status,
		delivery.Attempts,
		nullableTimeValue(delivery.NextAt),
		nullableStringValue(delivery.LastErr),
		delivery.UpdatedAt,
		sessionID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE payment_status IN (?, ?)
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?`

	args := append(openStatuses(), before, limit)
	return r.list(ctx, query, args...)
}

func (r *TransactionRepository) ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE payment_status IN (?, ?)
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?`

	args := append(openStatuses(), cutoff, limit)
	return r.list(ctx, query, args...)
}

func (r *TransactionRepository) ListDueNotifications(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM checkout_transactions
		WHERE notification_status = ?
		  AND notification_next_at IS NOT NULL
		  AND notification_next_at <= ?
		ORDER BY notification_next_at ASC
		LIMIT ?`

	return r.list(ctx, query, entity.NotificationPending, now, limit)
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, tx *entity.PaymentTransaction) error {
	var userID sql.NullString
	var userEmail sql.NullString
	var status string
	var metadataJSON string
	var notificationNextAt sql.NullTime
	var notificationLastErr sql.NullString
	var completedAt sql.NullTime

	err := scan.Scan(
		&tx.SessionID,
		&tx.Provider,
		&tx.PackageID,
		&tx.AmountCents,
		&tx.Currency,
		&userID,
		&userEmail,
		&status,
		&tx.RawGatewayStatus,
		&tx.CheckoutURL,
		&metadataJSON,
		&tx.NotificationStatus,
		&tx.NotificationAttempts,
		&notificationNextAt,
		&notificationLastErr,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return err
	}

	tx.PaymentStatus = entity.PaymentStatus(status)
	tx.UserID = stringPtrFromNull(userID)
	tx.UserEmail = stringPtrFromNull(userEmail)
	tx.NotificationNextAt = timePtrFromNull(notificationNextAt)
	tx.NotificationLastErr = stringPtrFromNull(notificationLastErr)
	tx.CompletedAt = timePtrFromNull(completedAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	tx.Metadata = metadata

	return nil
}
