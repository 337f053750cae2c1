package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

var (
	transactionsBucket    = []byte("checkout_transactions")
	transactionEventsBkt  = []byte("transaction_events")
	webhookReceiptsBucket = []byte("webhook_receipts")
)

// BoltStore is the embedded single-file store used when no database server
// is configured. Every conditional write runs inside one bolt read-write
// transaction, which bolt serializes.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{transactionsBucket, transactionEventsBkt, webhookReceiptsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Transactions() *BoltTransactionRepository {
	return &BoltTransactionRepository{db: s.db}
}

func (s *BoltStore) Events() *BoltTransactionEventRepository {
	return &BoltTransactionEventRepository{db: s.db}
}

func (s *BoltStore) WebhookReceipts() *BoltWebhookReceiptRepository {
	return &BoltWebhookReceiptRepository{db: s.db}
}

type BoltTransactionRepository struct {
	db *bolt.DB
}

func (r *BoltTransactionRepository) InsertIfAbsent(_ context.Context, tx *entity.PaymentTransaction) (bool, error) {
	inserted := false

	err := r.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(transactionsBucket)
		if b.Get([]byte(tx.SessionID)) != nil {
			return nil
		}

		data, err := json.Marshal(tx)
		if err != nil {
			return err
		}

		inserted = true
		return b.Put([]byte(tx.SessionID), data)
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

func (r *BoltTransactionRepository) FindBySessionID(_ context.Context, sessionID string) (*entity.PaymentTransaction, error) {
	var found *entity.PaymentTransaction

	err := r.db.View(func(btx *bolt.Tx) error {
		v := btx.Bucket(transactionsBucket).Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		found = &entity.PaymentTransaction{}
		return json.Unmarshal(v, found)
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

func (r *BoltTransactionRepository) CompareAndUpdate(
	_ context.Context,
	sessionID string,
	expected entity.PaymentStatus,
	update TransactionUpdate,
) (bool, error) {
	applied := false

	err := r.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(transactionsBucket)
		v := b.Get([]byte(sessionID))
		if v == nil {
			return nil
		}

		var current entity.PaymentTransaction
		if err := json.Unmarshal(v, &current); err != nil {
			return err
		}
		if current.PaymentStatus != expected {
			return nil
		}

		current.PaymentStatus = update.PaymentStatus
		current.RawGatewayStatus = update.RawGatewayStatus
		current.UpdatedAt = update.UpdatedAt
		if update.CompletedAt != nil && current.CompletedAt == nil {
			completedAt := *update.CompletedAt
			current.CompletedAt = &completedAt
		}
		if update.ScheduleNotification {
			nextAt := update.UpdatedAt
			current.NotificationStatus = entity.NotificationPending
			current.NotificationAttempts = 0
			current.NotificationNextAt = &nextAt
			current.NotificationLastErr = nil
		}

		data, err := json.Marshal(&current)
		if err != nil {
			return err
		}

		applied = true
		return b.Put([]byte(sessionID), data)
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

func (r *BoltTransactionRepository) UpdateNotification(_ context.Context, sessionID string, delivery NotificationDelivery) error {
	return r.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(transactionsBucket)
		v := b.Get([]byte(sessionID))
		if v == nil {
			return ErrTransactionNotFound
		}

		var current entity.PaymentTransaction
		if err := json.Unmarshal(v, &current); err != nil {
			return err
		}

		current.NotificationStatus = delivery.Status
		current.NotificationAttempts = delivery.Attempts
		current.NotificationNextAt = delivery.NextAt
		current.NotificationLastErr = delivery.LastErr
		current.UpdatedAt = delivery.UpdatedAt

		data, err := json.Marshal(&current)
		if err != nil {
			return err
		}
		return b.Put([]byte(sessionID), data)
	})
}

func (r *BoltTransactionRepository) ListForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	items, err := r.scan(func(tx *entity.PaymentTransaction) bool {
		return !tx.PaymentStatus.IsTerminal() && !tx.UpdatedAt.After(before)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	return truncate(items, limit), nil
}

func (r *BoltTransactionRepository) ListExpiredOpen(_ context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	items, err := r.scan(func(tx *entity.PaymentTransaction) bool {
		return !tx.PaymentStatus.IsTerminal() && !tx.CreatedAt.After(cutoff)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return truncate(items, limit), nil
}

func (r *BoltTransactionRepository) ListDueNotifications(_ context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	items, err := r.scan(func(tx *entity.PaymentTransaction) bool {
		return tx.NotificationStatus == entity.NotificationPending &&
			tx.NotificationNextAt != nil &&
			!tx.NotificationNextAt.After(now)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].NotificationNextAt.Before(*items[j].NotificationNextAt) })
	return truncate(items, limit), nil
}

func (r *BoltTransactionRepository) scan(match func(*entity.PaymentTransaction) bool) ([]*entity.PaymentTransaction, error) {
	items := make([]*entity.PaymentTransaction, 0)

	err := r.db.View(func(btx *bolt.Tx) error {
		return btx.Bucket(transactionsBucket).ForEach(func(_, v []byte) error {
			item := &entity.PaymentTransaction{}
			if err := json.Unmarshal(v, item); err != nil {
				return err
			}
			if match(item) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

func truncate(items []*entity.PaymentTransaction, limit int32) []*entity.PaymentTransaction {
	if limit > 0 && int(limit) < len(items) {
		return items[:limit]
	}
	return items
}

type BoltTransactionEventRepository struct {
	db *bolt.DB
}

func (r *BoltTransactionEventRepository) Create(_ context.Context, event *entity.TransactionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return putJSON(r.db, transactionEventsBkt, event.ID, event)
}

type BoltWebhookReceiptRepository struct {
	db *bolt.DB
}

func (r *BoltWebhookReceiptRepository) Create(_ context.Context, receipt *entity.WebhookReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	return putJSON(r.db, webhookReceiptsBucket, receipt.ID, receipt)
}

func putJSON(db *bolt.DB, bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucket).Put([]byte(key), data)
	})
}
