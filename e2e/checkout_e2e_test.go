//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	defaultCheckoutHTTPBase = "http://localhost:48081"
	defaultCheckoutGRPCAddr = "localhost:49091"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	return c.do(t, method, path, body, checkoutCallerAPIKey(), true)
}

func (c *httpClient) do(t *testing.T, method, path string, body any, apiKey string, withRequestID bool) (*http.Response, []byte) {
	t.Helper()

	reqBody := bytes.NewReader(nil)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withRequestID {
		req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	return c.send(t, req)
}

func (c *httpClient) postWebhook(t *testing.T, payload, signature string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/payments/webhook/stripe", bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}

	return c.send(t, req)
}

func (c *httpClient) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}
	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func withGRPCHeaders(apiKey string) grpc.DialOption {
	return grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", fmt.Sprintf("e2e-grpc-%d", time.Now().UnixNano()))
		if apiKey != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	})
}

func dialCheckoutGRPC(t *testing.T, addr string, opts ...grpc.DialOption) *grpc.ClientConn {
	t.Helper()
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(addr, opts...)
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	return conn
}

func grpcContextWithHeaders(apiKey, requestID string) context.Context {
	ctx := context.Background()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
	}
	return ctx
}

func TestCheckoutE2E(t *testing.T) {
	httpBase := os.Getenv("CHECKOUT_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultCheckoutHTTPBase
	}
	grpcAddr := os.Getenv("CHECKOUT_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultCheckoutGRPCAddr
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)

	conn := dialCheckoutGRPC(t, grpcAddr, withGRPCHeaders(checkoutCallerAPIKey()))
	defer conn.Close()
	grpcClient := types.NewCheckoutServiceClient(conn)

	rawConn := dialCheckoutGRPC(t, grpcAddr)
	defer rawConn.Close()
	rawGRPCClient := types.NewCheckoutServiceClient(rawConn)

	t.Run("HTTPHealthIsOpen", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodGet, "/health", nil, "", false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPMissingRequestID", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodGet, "/payments/packages", nil, checkoutCallerAPIKey(), false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing x-request-id, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPUnauthorizedMissingAPIKey", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodGet, "/payments/packages", nil, "", true)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for missing x-api-key, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPForbiddenInsufficientAccess", func(t *testing.T) {
		resp, _ := client.do(t, http.MethodGet, "/payments/packages", nil, checkoutNoAccessAPIKey(), true)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for insufficient access, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPListPackages", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/payments/packages", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.ListPackagesResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal packages failed: %v body=%s", err, string(body))
		}
		if len(payload.Packages) == 0 || payload.Currency == "" {
			t.Fatalf("expected a non-empty catalog, got %+v", payload)
		}
	})

	t.Run("HTTPCreateUnknownPackage", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/checkout/session", map[string]any{
			"package_id": "does-not-exist",
			"origin_url": "https://shop.example",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPCreateInvalidOrigin", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/checkout/session", map[string]any{
			"package_id": "small",
			"origin_url": "shop.example",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPStatusNotFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/payments/checkout/status/cs_e2e_missing", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPWebhookMissingSignature", func(t *testing.T) {
		resp, body := client.postWebhook(t, `{"id":"evt_e2e","type":"checkout.session.completed"}`, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPWebhookInvalidSignature", func(t *testing.T) {
		signature := fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), "00ff")
		resp, body := client.postWebhook(t, `{"id":"evt_e2e","type":"checkout.session.completed"}`, signature)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCMissingRequestID", func(t *testing.T) {
		_, err := rawGRPCClient.GetCheckoutStatus(context.Background(), wrapperspb.String("cs_e2e_missing"))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument for missing x-request-id, got %v", err)
		}
	})

	t.Run("GRPCUnauthorizedMissingAPIKey", func(t *testing.T) {
		ctx := grpcContextWithHeaders("", fmt.Sprintf("e2e-grpc-no-auth-%d", time.Now().UnixNano()))
		_, err := rawGRPCClient.GetCheckoutStatus(ctx, wrapperspb.String("cs_e2e_missing"))
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("GRPCForbiddenInsufficientAccess", func(t *testing.T) {
		ctx := grpcContextWithHeaders(checkoutNoAccessAPIKey(), fmt.Sprintf("e2e-grpc-forbidden-%d", time.Now().UnixNano()))
		_, err := rawGRPCClient.GetCheckoutStatus(ctx, wrapperspb.String("cs_e2e_missing"))
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("GRPCListPackages", func(t *testing.T) {
		res, err := grpcClient.ListPackages(context.Background(), &emptypb.Empty{})
		if err != nil {
			t.Fatalf("grpc list packages failed: %v", err)
		}
		if len(res.GetFields()["packages"].GetStructValue().GetFields()) == 0 {
			t.Fatalf("expected packages, got %v", res)
		}
	})

	t.Run("GRPCCreateUnknownPackage", func(t *testing.T) {
		in, _ := structpb.NewStruct(map[string]any{"package_id": "does-not-exist", "origin_url": "https://shop.example"})
		_, err := grpcClient.CreateCheckoutSession(context.Background(), in)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("GRPCStatusNotFound", func(t *testing.T) {
		_, err := grpcClient.GetCheckoutStatus(context.Background(), wrapperspb.String("cs_e2e_missing"))
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
