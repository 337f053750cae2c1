package types

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

const maxWebhookBodyBytes = 1 << 20

func NewCreateCheckoutSessionRequestFromContext(ctx echo.Context) (*CreateCheckoutSessionRequest, error) {
	var body CreateCheckoutSessionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.PackageId = strings.TrimSpace(body.PackageId)
	body.OriginUrl = strings.TrimRight(strings.TrimSpace(body.OriginUrl), "/")
	body.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	body.UserEmail = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserEmail))

	return &body, nil
}

func (r *CreateCheckoutSessionRequest) Validate() error {
	if strings.TrimSpace(r.GetPackageId()) == "" {
		return errors.New("package_id is required")
	}
	origin := strings.TrimSpace(r.GetOriginUrl())
	if origin == "" {
		return errors.New("origin_url is required")
	}
	parsed, err := url.Parse(origin)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("origin_url must be an absolute http(s) url")
	}
	for key := range r.GetMetadata() {
		if strings.TrimSpace(key) == "" {
			return errors.New("metadata keys must not be empty")
		}
	}
	return nil
}

func NewGetCheckoutStatusRequestFromContext(ctx echo.Context) (*GetCheckoutStatusRequest, error) {
	return &GetCheckoutStatusRequest{SessionId: strings.TrimSpace(ctx.Param("session_id"))}, nil
}

func (r *GetCheckoutStatusRequest) Validate() error {
	if strings.TrimSpace(r.GetSessionId()) == "" {
		return errors.New("session_id is required")
	}
	return nil
}

func NewHandleWebhookRequestFromContext(ctx echo.Context, signatureHeader string) (*HandleWebhookRequest, error) {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, err
	}

	return &HandleWebhookRequest{
		Provider:  strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		Signature: strings.TrimSpace(ctx.Request().Header.Get(signatureHeader)),
		Payload:   string(payload),
	}, nil
}

func (r *HandleWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return errors.New("provider is required")
	}
	if r.GetPayload() == "" {
		return errors.New("payload is required")
	}
	return nil
}
