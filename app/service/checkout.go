package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

const (
	defaultBatchSize      = int32(100)
	defaultGatewayTimeout = 10 * time.Second

	metadataPackageID = "package_id"
	metadataUserID    = "user_id"
	metadataUserEmail = "user_email"

	sourceCheckout   = "checkout"
	sourceStatusPoll = "status_poll"
	sourceWebhook    = "webhook"
	sourceReconcile  = "reconcile_job"
	sourceExpire     = "expire_job"

	gatewayStatusOpen = "open"
)

type createCheckoutSessionRequest interface {
	GetPackageId() string
	GetOriginUrl() string
	GetUserId() string
	GetUserEmail() string
	GetMetadata() map[string]string
}

type transactionRepository interface {
	InsertIfAbsent(ctx context.Context, tx *entity.PaymentTransaction) (bool, error)
	FindBySessionID(ctx context.Context, sessionID string) (*entity.PaymentTransaction, error)
	CompareAndUpdate(ctx context.Context, sessionID string, expected entity.PaymentStatus, update repository.TransactionUpdate) (bool, error)
	UpdateNotification(ctx context.Context, sessionID string, delivery repository.NotificationDelivery) error
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentTransaction, error)
	ListExpiredOpen(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentTransaction, error)
	ListDueNotifications(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentTransaction, error)
}

type transactionEventRepository interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
}

type webhookReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.WebhookReceipt) error
}

// SuccessHook runs once per transaction, right after the write that moved it
// to paid.
type SuccessHook func(ctx context.Context, tx *entity.PaymentTransaction)

type CheckoutSession struct {
	Transaction *entity.PaymentTransaction
	Package     catalog.Package
}

type CheckoutStatus struct {
	Transaction *entity.PaymentTransaction
	Gateway     *provider.SessionStatus
	Package     catalog.Package
	HasPackage  bool
	Outcome     *TransitionOutcome
}

type CheckoutService struct {
	txRepo      transactionRepository
	eventRepo   transactionEventRepository
	receiptRepo webhookReceiptRepository
	catalog     *catalog.Catalog
	providerReg *provider.Registry
	checkoutCfg config.CheckoutConfig
	paymentsCfg config.PaymentsConfig
	appAPIKey   string
	notifyHTTP  *http.Client
	hooks       []SuccessHook
	logger      logrus.FieldLogger
}

func NewCheckoutService(
	txRepo transactionRepository,
	eventRepo transactionEventRepository,
	receiptRepo webhookReceiptRepository,
	packages *catalog.Catalog,
	providerReg *provider.Registry,
	checkoutCfg config.CheckoutConfig,
	paymentsCfg config.PaymentsConfig,
	appAPIKey string,
) *CheckoutService {
	timeout := paymentsCfg.NotifyHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &CheckoutService{
		txRepo:      txRepo,
		eventRepo:   eventRepo,
		receiptRepo: receiptRepo,
		catalog:     packages,
		providerReg: providerReg,
		checkoutCfg: checkoutCfg,
		paymentsCfg: paymentsCfg,
		appAPIKey:   strings.TrimSpace(appAPIKey),
		notifyHTTP:  &http.Client{Timeout: timeout},
		logger:      factory.NewModuleLogger("checkout-service"),
	}
	s.hooks = []SuccessHook{s.recordPaymentSucceeded}

	return s
}

// OnPaymentSucceeded registers an additional post-payment side effect.
func (s *CheckoutService) OnPaymentSucceeded(hook SuccessHook) {
	if hook != nil {
		s.hooks = append(s.hooks, hook)
	}
}

func (s *CheckoutService) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req createCheckoutSessionRequest) (*CheckoutSession, error) {
	packageID := strings.TrimSpace(req.GetPackageId())
	if packageID == "" {
		return nil, fmt.Errorf("%w: package_id is required", ErrInvalidRequest)
	}

	pkg, ok := s.catalog.Lookup(packageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, packageID)
	}

	origin := strings.TrimRight(strings.TrimSpace(req.GetOriginUrl()), "/")
	if origin == "" {
		return nil, fmt.Errorf("%w: origin_url is required", ErrInvalidRequest)
	}

	providerClient, err := s.providerReg.Default()
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	userID := normalizeOptionalString(req.GetUserId())
	userEmail := normalizeOptionalString(req.GetUserEmail())
	metadata := sessionMetadata(pkg.ID, userID, userEmail, req.GetMetadata())

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	session, err := providerClient.CreateSession(gatewayCtx, &provider.CreateSessionInput{
		AmountCents:        pkg.AmountCents,
		Currency:           pkg.Currency,
		ProductName:        pkg.Name,
		ProductDescription: pkg.Description,
		CustomerEmail:      derefString(userEmail),
		Metadata:           metadata,
		SuccessURL:         fmt.Sprintf("%s/payment/success?session_id=%s", origin, providerClient.SessionIDPlaceholder()),
		CancelURL:          origin + "/payment/cancel",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if session == nil || strings.TrimSpace(session.SessionID) == "" || strings.TrimSpace(session.RedirectURL) == "" {
		return nil, fmt.Errorf("%w: malformed create session response", ErrGatewayUnavailable)
	}

	now := time.Now().UTC()
	tx := &entity.PaymentTransaction{
		SessionID:          session.SessionID,
		Provider:           providerClient.Code(),
		PackageID:          pkg.ID,
		AmountCents:        pkg.AmountCents,
		Currency:           pkg.Currency,
		UserID:             userID,
		UserEmail:          userEmail,
		PaymentStatus:      entity.PaymentStatusInitiated,
		RawGatewayStatus:   gatewayStatusOpen,
		CheckoutURL:        session.RedirectURL,
		Metadata:           metadata,
		NotificationStatus: entity.NotificationNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	inserted, err := s.txRepo.InsertIfAbsent(ctx, tx)
	if err != nil {
		s.logUnreconciled(tx, err)
		return nil, err
	}
	if !inserted {
		s.logUnreconciled(tx, ErrTransactionAlreadyExists)
		return nil, ErrTransactionAlreadyExists
	}

	s.recordEvent(ctx, &entity.TransactionEvent{
		SessionID: tx.SessionID,
		EventType: entity.EventTransactionCreated,
		NewStatus: tx.PaymentStatus,
		Source:    sourceCheckout,
		CreatedAt: now,
	})

	return &CheckoutSession{Transaction: tx, Package: pkg}, nil
}

// GetCheckoutStatus polls the gateway for the session and feeds the answer
// through ApplyObservedStatus. A failed poll leaves the record untouched.
func (s *CheckoutService) GetCheckoutStatus(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}

	tx, err := s.txRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	gateway, err := s.fetchSessionStatus(ctx, tx)
	if err != nil {
		return nil, err
	}

	outcome, err := s.ApplyObservedStatus(ctx, sessionID, gateway.RawStatus, gateway.RawPaymentStatus, sourceStatusPoll)
	if err != nil {
		return nil, err
	}

	pkg, hasPackage := s.catalog.Lookup(outcome.Transaction.PackageID)
	return &CheckoutStatus{
		Transaction: outcome.Transaction,
		Gateway:     gateway,
		Package:     pkg,
		HasPackage:  hasPackage,
		Outcome:     outcome,
	}, nil
}

func (s *CheckoutService) fetchSessionStatus(ctx context.Context, tx *entity.PaymentTransaction) (*provider.SessionStatus, error) {
	return s.callGateway(ctx, tx, "get session status", provider.Provider.GetSessionStatus)
}

func (s *CheckoutService) expireGatewaySession(ctx context.Context, tx *entity.PaymentTransaction) (*provider.SessionStatus, error) {
	return s.callGateway(ctx, tx, "expire session", provider.Provider.ExpireSession)
}

func (s *CheckoutService) callGateway(
	ctx context.Context,
	tx *entity.PaymentTransaction,
	op string,
	call func(p provider.Provider, ctx context.Context, sessionID string) (*provider.SessionStatus, error),
) (*provider.SessionStatus, error) {
	providerClient, err := s.providerReg.Get(tx.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	status, err := call(providerClient, gatewayCtx, tx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: %s: empty session status", ErrGatewayUnavailable, op)
	}

	return status, nil
}

func (s *CheckoutService) logUnreconciled(tx *entity.PaymentTransaction, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"event":      "unreconciled_gateway_session",
		"session_id": tx.SessionID,
		"provider":   tx.Provider,
		"package_id": tx.PackageID,
	}).Error("Gateway session created but transaction was not persisted")
}

func (s *CheckoutService) recordEvent(ctx context.Context, event *entity.TransactionEvent) {
	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"event_type": event.EventType,
		}).Warn("Failed to record transaction event")
	}
}

func (s *CheckoutService) gatewayTimeout() time.Duration {
	if s.checkoutCfg.GatewayTimeout > 0 {
		return s.checkoutCfg.GatewayTimeout
	}
	return defaultGatewayTimeout
}

func (s *CheckoutService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

// sessionMetadata merges caller metadata with the reserved keys. Reserved
// keys always win.
func sessionMetadata(packageID string, userID, userEmail *string, extra map[string]string) map[string]string {
	metadata := make(map[string]string, len(extra)+3)
	for k, v := range extra {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		metadata[key] = v
	}
	metadata[metadataPackageID] = packageID
	metadata[metadataUserID] = derefString(userID)
	metadata[metadataUserEmail] = derefString(userEmail)
	return metadata
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
