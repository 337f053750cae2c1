package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Server struct {
	types.UnimplementedCheckoutServiceServer
	checkoutService *service.CheckoutService
}

func NewServer(checkoutService *service.CheckoutService) *Server {
	return &Server{checkoutService: checkoutService}
}

func (s *Server) Health(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return encode(&types.HealthResponse{Status: "ok"})
}

func (s *Server) ListPackages(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return encode(mapper.CatalogToResponse(s.checkoutService.Catalog()))
}

func (s *Server) CreateCheckoutSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	l := loggerWithContext(ctx)
	req, err := types.NewCreateCheckoutSessionRequestFromStruct(in, metadataValue(ctx, userIDHeader), metadataValue(ctx, userEmailHeader))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Create checkout session validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.checkoutService.CreateCheckoutSession(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPackage):
			return nil, status.Error(codes.InvalidArgument, "unknown package")
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, service.ErrGatewayUnavailable):
			l.WithError(err).Error("Create checkout session failed at gateway")
			return nil, status.Error(codes.Unavailable, "payment gateway unavailable")
		default:
			l.WithError(err).Error("Create checkout session failed")
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return encode(mapper.CheckoutSessionToResponse(result.Transaction, result.Package))
}

func (s *Server) GetCheckoutStatus(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	sessionID := strings.TrimSpace(in.GetValue())
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}

	st, err := s.checkoutService.GetCheckoutStatus(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			return nil, status.Error(codes.NotFound, "transaction not found")
		case errors.Is(err, service.ErrGatewayUnavailable):
			loggerWithContext(ctx).WithError(err).Warn("Checkout status poll failed at gateway")
			return nil, status.Error(codes.Unavailable, "payment gateway unavailable")
		case errors.Is(err, service.ErrInvalidRequest):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		default:
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	return encode(mapper.CheckoutStatusToResponse(st.Transaction, st.Gateway, st.Package, st.HasPackage))
}

func encode(v interface{}) (*structpb.Struct, error) {
	out, err := types.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
