package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

// memoryTransactionRepo honours the conditional-update contract under a mutex.
type memoryTransactionRepo struct {
	mu    sync.Mutex
	items map[string]*entity.PaymentTransaction

	insertFn  func(ctx context.Context, tx *entity.PaymentTransaction) (bool, error)
	afterFind func(sessionID string)
	beforeCAS func(sessionID string)

	casCalls    int
	casApplied  int
	notifyCalls int
}

func newMemoryTransactionRepo() *memoryTransactionRepo {
	return &memoryTransactionRepo{items: map[string]*entity.PaymentTransaction{}}
}

func (r *memoryTransactionRepo) put(tx *entity.PaymentTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *tx
	r.items[tx.SessionID] = &copyItem
}

func (r *memoryTransactionRepo) get(sessionID string) *entity.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[sessionID]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (r *memoryTransactionRepo) InsertIfAbsent(ctx context.Context, tx *entity.PaymentTransaction) (bool, error) {
	if r.insertFn != nil {
		return r.insertFn(ctx, tx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[tx.SessionID]; ok {
		return false, nil
	}
	copyItem := *tx
	r.items[tx.SessionID] = &copyItem
	return true, nil
}

func (r *memoryTransactionRepo) FindBySessionID(_ context.Context, sessionID string) (*entity.PaymentTransaction, error) {
	item := r.get(sessionID)
	if r.afterFind != nil {
		r.afterFind(sessionID)
	}
	return item, nil
}

func (r *memoryTransactionRepo) CompareAndUpdate(
	_ context.Context,
	sessionID string,
	expected entity.PaymentStatus,
	update repository.TransactionUpdate,
) (bool, error) {
	if r.beforeCAS != nil {
		r.beforeCAS(sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.casCalls++

	item, ok := r.items[sessionID]
	if !ok || item.PaymentStatus != expected {
		return false, nil
	}

	item.PaymentStatus = update.PaymentStatus
	item.RawGatewayStatus = update.RawGatewayStatus
	item.UpdatedAt = update.UpdatedAt
	if update.CompletedAt != nil && item.CompletedAt == nil {
		completedAt := *update.CompletedAt
		item.CompletedAt = &completedAt
	}
	if update.ScheduleNotification {
		nextAt := update.UpdatedAt
		item.NotificationStatus = entity.NotificationPending
		item.NotificationAttempts = 0
		item.NotificationNextAt = &nextAt
		item.NotificationLastErr = nil
	}
	r.casApplied++
	return true, nil
}

func (r *memoryTransactionRepo) UpdateNotification(_ context.Context, sessionID string, delivery repository.NotificationDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyCalls++

	item, ok := r.items[sessionID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	item.NotificationStatus = delivery.Status
	item.NotificationAttempts = delivery.Attempts
	item.NotificationNextAt = delivery.NextAt
	item.NotificationLastErr = delivery.LastErr
	item.UpdatedAt = delivery.UpdatedAt
	return nil
}

func (r *memoryTransactionRepo) ListForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	return r.filter(limit, func(item *entity.PaymentTransaction) bool {
		return !item.PaymentStatus.IsTerminal() && !item.UpdatedAt.After(before)
	}), nil
}

func (r *memoryTransactionRepo) ListExpiredOpen(_ context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	return r.filter(limit, func(item *entity.PaymentTransaction) bool {
		return !item.PaymentStatus.IsTerminal() && !item.CreatedAt.After(cutoff)
	}), nil
}

func (r *memoryTransactionRepo) ListDueNotifications(_ context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error) {
	return r.filter(limit, func(item *entity.PaymentTransaction) bool {
		return item.NotificationStatus == entity.NotificationPending &&
			item.NotificationNextAt != nil &&
			!item.NotificationNextAt.After(now)
	}), nil
}

func (r *memoryTransactionRepo) filter(limit int32, match func(*entity.PaymentTransaction) bool) []*entity.PaymentTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]*entity.PaymentTransaction, 0)
	for _, item := range r.items {
		if match(item) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	if limit > 0 && int(limit) < len(items) {
		return items[:limit]
	}
	return items
}

type memoryEventRepo struct {
	mu     sync.Mutex
	events []*entity.TransactionEvent
}

func (r *memoryEventRepo) Create(_ context.Context, event *entity.TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *memoryEventRepo) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type memoryReceiptRepo struct {
	mu       sync.Mutex
	receipts []*entity.WebhookReceipt
}

func (r *memoryReceiptRepo) Create(_ context.Context, receipt *entity.WebhookReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *receipt
	r.receipts = append(r.receipts, &copyItem)
	return nil
}

type fakeProvider struct {
	mu sync.Mutex

	createFn  func(ctx context.Context, input *provider.CreateSessionInput) (*provider.Session, error)
	statusFn  func(ctx context.Context, sessionID string) (*provider.SessionStatus, error)
	expireFn  func(ctx context.Context, sessionID string) (*provider.SessionStatus, error)
	webhookFn func(ctx context.Context, payload []byte, signature string) (*provider.WebhookEvent, error)

	createCalls int
	statusCalls int
	expireCalls int
	lastCreate  *provider.CreateSessionInput
}

func (p *fakeProvider) Code() string {
	return provider.CodeStripe
}

func (p *fakeProvider) SessionIDPlaceholder() string {
	return "{CHECKOUT_SESSION_ID}"
}

func (p *fakeProvider) CreateSession(ctx context.Context, input *provider.CreateSessionInput) (*provider.Session, error) {
	p.mu.Lock()
	p.createCalls++
	p.lastCreate = input
	p.mu.Unlock()

	if p.createFn != nil {
		return p.createFn(ctx, input)
	}
	return &provider.Session{SessionID: "cs_test_1", RedirectURL: "https://checkout.stripe.test/c/cs_test_1"}, nil
}

func (p *fakeProvider) GetSessionStatus(ctx context.Context, sessionID string) (*provider.SessionStatus, error) {
	p.mu.Lock()
	p.statusCalls++
	p.mu.Unlock()

	if p.statusFn != nil {
		return p.statusFn(ctx, sessionID)
	}
	return &provider.SessionStatus{RawStatus: "open", RawPaymentStatus: "unpaid"}, nil
}

func (p *fakeProvider) ExpireSession(ctx context.Context, sessionID string) (*provider.SessionStatus, error) {
	p.mu.Lock()
	p.expireCalls++
	p.mu.Unlock()

	if p.expireFn != nil {
		return p.expireFn(ctx, sessionID)
	}
	return &provider.SessionStatus{RawStatus: "expired", RawPaymentStatus: "unpaid"}, nil
}

func (p *fakeProvider) VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*provider.WebhookEvent, error) {
	if p.webhookFn != nil {
		return p.webhookFn(ctx, payload, signature)
	}
	return nil, provider.ErrInvalidSignature
}

type serviceFixture struct {
	svc      *CheckoutService
	repo     *memoryTransactionRepo
	events   *memoryEventRepo
	receipts *memoryReceiptRepo
	gateway  *fakeProvider
}

func newServiceFixture(paymentsCfg config.PaymentsConfig, providers ...provider.Provider) *serviceFixture {
	gateway := &fakeProvider{}
	if len(providers) == 0 {
		providers = []provider.Provider{gateway}
	}

	f := &serviceFixture{
		repo:     newMemoryTransactionRepo(),
		events:   &memoryEventRepo{},
		receipts: &memoryReceiptRepo{},
		gateway:  gateway,
	}
	f.svc = NewCheckoutService(
		f.repo,
		f.events,
		f.receipts,
		catalog.Default(),
		provider.NewRegistry(providers...),
		config.CheckoutConfig{Currency: "usd", GatewayTimeout: time.Second},
		paymentsCfg,
		"checkout-app-key",
	)
	return f
}

func seedTransaction(repo *memoryTransactionRepo, sessionID string, status entity.PaymentStatus, at time.Time) {
	repo.put(&entity.PaymentTransaction{
		SessionID:        sessionID,
		Provider:         provider.CodeStripe,
		PackageID:        "medium",
		AmountCents:      1000,
		Currency:         "usd",
		PaymentStatus:    status,
		RawGatewayStatus: "open",
		Metadata:         map[string]string{"package_id": "medium"},
		CreatedAt:        at,
		UpdatedAt:        at,
	})
}

func signWebhookPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
