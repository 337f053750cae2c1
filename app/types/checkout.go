package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type PackageInfo struct {
	Amount      float64 `json:"amount,omitempty"`
	AmountCents int64   `json:"amount_cents,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
}

type ListPackagesResponse struct {
	Packages map[string]*PackageInfo `json:"packages"`
	Currency string                  `json:"currency"`
}

type CreateCheckoutSessionRequest struct {
	PackageId string            `json:"package_id"`
	OriginUrl string            `json:"origin_url"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Payer identity comes from trusted gateway headers, never from the body.
	UserId    string `json:"-"`
	UserEmail string `json:"-"`
}

func (r *CreateCheckoutSessionRequest) GetPackageId() string {
	if r == nil {
		return ""
	}
	return r.PackageId
}

func (r *CreateCheckoutSessionRequest) GetOriginUrl() string {
	if r == nil {
		return ""
	}
	return r.OriginUrl
}

func (r *CreateCheckoutSessionRequest) GetMetadata() map[string]string {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *CreateCheckoutSessionRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *CreateCheckoutSessionRequest) GetUserEmail() string {
	if r == nil {
		return ""
	}
	return r.UserEmail
}

type CreateCheckoutSessionResponse struct {
	Url       string  `json:"url"`
	SessionId string  `json:"session_id"`
	Amount    float64 `json:"amount"`
	Package   string  `json:"package"`
}

type GetCheckoutStatusRequest struct {
	SessionId string `json:"session_id"`
}

func (r *GetCheckoutStatusRequest) GetSessionId() string {
	if r == nil {
		return ""
	}
	return r.SessionId
}

type CheckoutStatusResponse struct {
	SessionId         string            `json:"session_id"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       float64           `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	PackageInfo       *PackageInfo      `json:"package_info"`
	TransactionStatus string            `json:"transaction_status"`
}

type HandleWebhookRequest struct {
	Provider  string
	Signature string
	Payload   string
}

func (r *HandleWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *HandleWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *HandleWebhookRequest) GetPayload() string {
	if r == nil {
		return ""
	}
	return r.Payload
}

type WebhookResponse struct {
	EventType string `json:"event_type"`
	SessionId string `json:"session_id"`
	Status    string `json:"status"`
}

// PaymentNotification is the body posted to the fulfillment endpoint once a
// transaction is paid.
type PaymentNotification struct {
	SessionId     string            `json:"session_id"`
	PackageId     string            `json:"package_id"`
	AmountCents   int64             `json:"amount_cents"`
	Currency      string            `json:"currency"`
	UserId        string            `json:"user_id,omitempty"`
	UserEmail     string            `json:"user_email,omitempty"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
	CompletedAt   string            `json:"completed_at,omitempty"`
}
