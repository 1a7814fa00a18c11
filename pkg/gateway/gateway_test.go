package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/cache"
	"github.com/lumenbridge/gatewayd/pkg/config"
	"github.com/lumenbridge/gatewayd/pkg/queue"
	"github.com/lumenbridge/gatewayd/pkg/stats"
	"github.com/lumenbridge/gatewayd/pkg/telemetry"
	"github.com/lumenbridge/gatewayd/pkg/upstream"
)

func newTestGateway(t *testing.T, upstreamURL string) (*Gateway, *config.Store) {
	t.Helper()
	store, err := config.NewStore(t.TempDir() + "/gatewayd.config.yaml")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Update(func(c *config.Config) {
		c.LocalAPIKey = "test-local-key"
		c.UpstreamBaseURL = upstreamURL
		c.UpstreamAPIKey = "upstream-key"
		c.DefaultModel = "gemini-1.5-pro"
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	return &Gateway{
		Config:    store,
		Cache:     cache.New(time.Minute),
		Queue:     queue.New(3, 0),
		Upstream:  upstream.New(nil),
		Counters:  stats.New(),
		Telemetry: telemetry.DefaultSettings(),
	}, store
}

const sampleGoogleResponse = `{
  "candidates": [
    {
      "content": {"role": "model", "parts": [{"text": "hi there"}]},
      "finishReason": "STOP"
    }
  ],
  "usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 3, "totalTokenCount": 8}
}`

const sampleRequestBody = `{
  "model": "gemini-1.5-pro",
  "messages": [{"role": "user", "content": "hello"}],
  "max_tokens": 256
}`

func TestHandleMessages_RejectsMissingBearerToken(t *testing.T) {
	gw, _ := newTestGateway(t, "https://unused.invalid")
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(sampleRequestBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHandleMessages_SyncRoundTrip(t *testing.T) {
	upstreamServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleGoogleResponse))
	}))
	defer upstreamServer.Close()

	gw, _ := newTestGateway(t, upstreamServer.URL)
	gw.Upstream = upstream.New(upstreamServer.Client())
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(sampleRequestBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-local-key")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("expected X-Cache MISS on first call, got %q", got)
	}
}

func TestHandleMessages_SecondIdenticalRequestHitsCache(t *testing.T) {
	var upstreamCalls int
	upstreamServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleGoogleResponse))
	}))
	defer upstreamServer.Close()

	gw, _ := newTestGateway(t, upstreamServer.URL)
	gw.Upstream = upstream.New(upstreamServer.Client())
	app := fiber.New()
	gw.Register(app)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(sampleRequestBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer test-local-key")

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, resp.StatusCode)
		}
		wantCache := "MISS"
		if i == 1 {
			wantCache = "HIT"
		}
		if got := resp.Header.Get("X-Cache"); got != wantCache {
			t.Errorf("call %d: expected X-Cache %s, got %q", i, wantCache, got)
		}
	}

	if upstreamCalls != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", upstreamCalls)
	}
}

func TestHandleMessages_UpstreamErrorMapsToGatewayEnvelope(t *testing.T) {
	upstreamServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited upstream"}}`))
	}))
	defer upstreamServer.Close()

	gw, _ := newTestGateway(t, upstreamServer.URL)
	gw.Upstream = upstream.New(upstreamServer.Client())
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(sampleRequestBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-local-key")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 for upstream rate limit, got %d", resp.StatusCode)
	}
}

func TestHandleMessages_MalformedBodyReturnsInvalidRequest(t *testing.T) {
	gw, _ := newTestGateway(t, "https://unused.invalid")
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-local-key")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected an error status, got %d", resp.StatusCode)
	}
}

func TestMapUpstreamTransportError_DeadlineExceededIsTimeout(t *testing.T) {
	wrapped := fmt.Errorf("upstream request failed: %w", context.DeadlineExceeded)

	ge := mapUpstreamTransportError(wrapped)
	if ge.Kind != apierr.KindTimeout {
		t.Errorf("expected KindTimeout, got %q", ge.Kind)
	}
	if status := apierr.HTTPStatusFor(ge.Kind); status != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", status)
	}
}

func TestMapUpstreamTransportError_ConnectionFailureIsAPIError(t *testing.T) {
	wrapped := fmt.Errorf("upstream request failed: %w", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"))

	ge := mapUpstreamTransportError(wrapped)
	if ge.Kind != apierr.KindAPI {
		t.Errorf("expected KindAPI, got %q", ge.Kind)
	}
	if status := apierr.HTTPStatusFor(ge.Kind); status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", status)
	}
}

func TestHandleMessages_UpstreamConnectionRefusedReturns502(t *testing.T) {
	// Bind and immediately close a listener so its port refuses connections.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadURL := "https://" + listener.Addr().String()
	listener.Close()

	gw, _ := newTestGateway(t, deadURL)
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(sampleRequestBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-local-key")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 for a connection failure, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	gw, _ := newTestGateway(t, "https://unused.invalid")
	app := fiber.New()
	gw.Register(app)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
