package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

// StripeSignatureHeader carries the signature Stripe computes over the raw
// webhook body.
const StripeSignatureHeader = "Stripe-Signature"

type CheckoutController struct {
	checkoutService *service.CheckoutService
	logger          logrus.FieldLogger
}

func NewCheckoutController(checkoutService *service.CheckoutService) *CheckoutController {
	return &CheckoutController{
		checkoutService: checkoutService,
		logger:          factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *CheckoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *CheckoutController) ListPackages(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, mapper.CatalogToResponse(c.checkoutService.Catalog()))
}

func (c *CheckoutController) CreateCheckoutSession(ctx echo.Context) error {
	req, err := types.NewCreateCheckoutSessionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.CreateCheckoutSession(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPackage):
			return c.writeError(ctx, http.StatusBadRequest, "unknown package")
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrGatewayUnavailable):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create checkout session failed at gateway")
			return c.writeError(ctx, http.StatusInternalServerError, "payment gateway unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create checkout session failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutSessionToResponse(result.Transaction, result.Package))
}

func (c *CheckoutController) GetCheckoutStatus(ctx echo.Context) error {
	req, err := types.NewGetCheckoutStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	st, err := c.checkoutService.GetCheckoutStatus(ctx.Request().Context(), req.GetSessionId())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransactionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		case errors.Is(err, service.ErrGatewayUnavailable):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Checkout status poll failed at gateway")
			return c.writeError(ctx, http.StatusBadGateway, "payment gateway unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get checkout status failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.CheckoutStatusToResponse(st.Transaction, st.Gateway, st.Package, st.HasPackage))
}

func (c *CheckoutController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewHandleWebhookRequestFromContext(ctx, StripeSignatureHeader)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.checkoutService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidWebhookSignature):
			return c.writeError(ctx, http.StatusBadRequest, "invalid webhook signature")
		case errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookResponse{
		EventType: result.EventType,
		SessionId: result.SessionID,
		Status:    result.Status,
	})
}

func (c *CheckoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
