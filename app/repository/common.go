package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

// TransactionUpdate carries the fields a reconciliation transition may write.
// Amount, currency, package and identity are intentionally absent: they are
// fixed at creation.
type TransactionUpdate struct {
	PaymentStatus    entity.PaymentStatus
	RawGatewayStatus string
	UpdatedAt        time.Time
	CompletedAt      *time.Time

	// ScheduleNotification marks the fulfillment notification as due at
	// UpdatedAt within the same conditional write.
	ScheduleNotification bool
}

type NotificationDelivery struct {
	Status    int32
	Attempts  int32
	NextAt    *time.Time
	LastErr   *string
	UpdatedAt time.Time
}

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func openStatuses() []interface{} {
	return []interface{}{string(entity.PaymentStatusInitiated), string(entity.PaymentStatusPending)}
}

func nullableStringValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTimeValue(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStatusValue(v *entity.PaymentStatus) interface{} {
	if v == nil {
		return nil
	}
	return string(*v)
}

func stringPtrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtrFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func serializeMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func parseMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return metadata, nil
}
