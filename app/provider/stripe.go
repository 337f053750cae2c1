package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"
)

const stripeSessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
	// APIURL overrides the Stripe API base url. Empty means api.stripe.com.
	APIURL                    string
	Logger                    logrus.FieldLogger
}

type StripeProvider struct {
	cfg      StripeConfig
	sessions *session.Client
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.Logger != nil {
		backendCfg.LeveledLogger = cfg.Logger
	}
	if u := strings.TrimSpace(cfg.APIURL); u != "" {
		backendCfg.URL = stripe.String(u)
	}

	return &StripeProvider{
		cfg: cfg,
		sessions: &session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}
}

func (p *StripeProvider) Code() string {
	return CodeStripe
}

func (p *StripeProvider) SessionIDPlaceholder() string {
	return stripeSessionIDPlaceholder
}

func (p *StripeProvider) CreateSession(ctx context.Context, input *CreateSessionInput) (*Session, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(input.ProductName),
	}
	if d := strings.TrimSpace(input.ProductDescription); d != "" {
		productData.Description = stripe.String(d)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(strings.ToLower(input.Currency)),
					UnitAmount:  stripe.Int64(input.AmountCents),
					ProductData: productData,
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	created, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session failed: %w", err)
	}
	if strings.TrimSpace(created.ID) == "" || strings.TrimSpace(created.URL) == "" {
		return nil, errors.New("stripe checkout session response is missing id or url")
	}

	return &Session{
		SessionID:   created.ID,
		RedirectURL: created.URL,
	}, nil
}

func (p *StripeProvider) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session failed: %w", err)
	}

	return stripeSessionStatus(cs), nil
}

func (p *StripeProvider) ExpireSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	cs, err := p.sessions.Expire(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe expire checkout session failed: %w", err)
	}

	return stripeSessionStatus(cs), nil
}

func stripeSessionStatus(cs *stripe.CheckoutSession) *SessionStatus {
	return &SessionStatus{
		RawStatus:        string(cs.Status),
		RawPaymentStatus: string(cs.PaymentStatus),
		AmountTotal:      cs.AmountTotal,
		Currency:         string(cs.Currency),
		Metadata:         cs.Metadata,
	}
}

func (p *StripeProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing stripe signature", ErrInvalidSignature)
	}

	tolerance := time.Duration(p.cfg.SignatureToleranceSeconds) * time.Second
	event, err := webhook.ConstructEventWithTolerance(payload, signature, p.cfg.WebhookSecret, tolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return webhookEventFromStripe(event)
}

func webhookEventFromStripe(event stripe.Event) (*WebhookEvent, error) {
	result := &WebhookEvent{
		EventID:   strings.TrimSpace(event.ID),
		EventType: event.Type,
	}
	if !strings.HasPrefix(event.Type, "checkout.session.") || event.Data == nil {
		return result, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("stripe checkout session payload is malformed: %w", err)
	}

	result.SessionID = strings.TrimSpace(cs.ID)
	result.RawStatus = string(cs.Status)
	result.RawPaymentStatus = string(cs.PaymentStatus)

	switch event.Type {
	case "checkout.session.async_payment_succeeded":
		result.RawPaymentStatus = string(stripe.CheckoutSessionPaymentStatusPaid)
	case "checkout.session.async_payment_failed":
		result.RawPaymentStatus = "failed"
	case "checkout.session.expired":
		result.RawStatus = "expired"
	}

	return result, nil
}
