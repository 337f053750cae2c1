package types

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The checkout gRPC API carries its JSON-shaped messages inside well-known
// protobuf types, so request and response bodies match the HTTP API field for
// field.

const (
	CheckoutServiceName = "checkout.CheckoutService"

	CheckoutService_Health_FullMethodName                = "/checkout.CheckoutService/Health"
	CheckoutService_ListPackages_FullMethodName          = "/checkout.CheckoutService/ListPackages"
	CheckoutService_CreateCheckoutSession_FullMethodName = "/checkout.CheckoutService/CreateCheckoutSession"
	CheckoutService_GetCheckoutStatus_FullMethodName     = "/checkout.CheckoutService/GetCheckoutStatus"
)

type CheckoutServiceServer interface {
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListPackages(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CreateCheckoutSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCheckoutStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

type UnimplementedCheckoutServiceServer struct{}

func (UnimplementedCheckoutServiceServer) Health(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}

func (UnimplementedCheckoutServiceServer) ListPackages(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPackages not implemented")
}

func (UnimplementedCheckoutServiceServer) CreateCheckoutSession(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateCheckoutSession not implemented")
}

func (UnimplementedCheckoutServiceServer) GetCheckoutStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCheckoutStatus not implemented")
}

func RegisterCheckoutServiceServer(s grpc.ServiceRegistrar, srv CheckoutServiceServer) {
	s.RegisterService(&CheckoutService_ServiceDesc, srv)
}

func _CheckoutService_Health_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_Health_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServiceServer).Health(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_ListPackages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).ListPackages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_ListPackages_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServiceServer).ListPackages(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_CreateCheckoutSession_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).CreateCheckoutSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_CreateCheckoutSession_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServiceServer).CreateCheckoutSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _CheckoutService_GetCheckoutStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CheckoutServiceServer).GetCheckoutStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckoutService_GetCheckoutStatus_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CheckoutServiceServer).GetCheckoutStatus(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var CheckoutService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: CheckoutServiceName,
	HandlerType: (*CheckoutServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: _CheckoutService_Health_Handler},
		{MethodName: "ListPackages", Handler: _CheckoutService_ListPackages_Handler},
		{MethodName: "CreateCheckoutSession", Handler: _CheckoutService_CreateCheckoutSession_Handler},
		{MethodName: "GetCheckoutStatus", Handler: _CheckoutService_GetCheckoutStatus_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout.proto",
}

type CheckoutServiceClient interface {
	Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListPackages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	CreateCheckoutSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetCheckoutStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type checkoutServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCheckoutServiceClient(cc grpc.ClientConnInterface) CheckoutServiceClient {
	return &checkoutServiceClient{cc: cc}
}

func (c *checkoutServiceClient) Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckoutService_Health_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) ListPackages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckoutService_ListPackages_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) CreateCheckoutSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckoutService_CreateCheckoutSession_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *checkoutServiceClient) GetCheckoutStatus(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CheckoutService_GetCheckoutStatus_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ToStruct converts a JSON-tagged response into its gRPC envelope.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}

	return structpb.NewStruct(fields)
}

// FromStruct decodes a gRPC envelope into a JSON-tagged message.
func FromStruct(in *structpb.Struct, v interface{}) error {
	payload, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

func NewCreateCheckoutSessionRequestFromStruct(in *structpb.Struct, userID, userEmail string) (*CreateCheckoutSessionRequest, error) {
	var body CreateCheckoutSessionRequest
	if in != nil {
		if err := FromStruct(in, &body); err != nil {
			return nil, err
		}
	}

	body.PackageId = strings.TrimSpace(body.PackageId)
	body.OriginUrl = strings.TrimRight(strings.TrimSpace(body.OriginUrl), "/")
	body.UserId = strings.TrimSpace(userID)
	body.UserEmail = strings.TrimSpace(userEmail)

	return &body, nil
}
