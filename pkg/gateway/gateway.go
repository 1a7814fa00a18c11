// Package gateway implements Component I, the proxy controller: the single
// client-facing HTTP handler that authenticates, classifies, caches,
// queues, translates, and dispatches a Dialect A request to the Dialect G
// upstream. It is built on Fiber the way the teacher SDK's
// examples/fiber-server wires up its own single-route handler, generalized
// from one static model call into the full translate/cache/queue pipeline.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/cache"
	"github.com/lumenbridge/gatewayd/pkg/classify"
	"github.com/lumenbridge/gatewayd/pkg/config"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
	"github.com/lumenbridge/gatewayd/pkg/endpoint"
	"github.com/lumenbridge/gatewayd/pkg/mcpbridge"
	"github.com/lumenbridge/gatewayd/pkg/queue"
	"github.com/lumenbridge/gatewayd/pkg/stats"
	"github.com/lumenbridge/gatewayd/pkg/streaming"
	"github.com/lumenbridge/gatewayd/pkg/telemetry"
	"github.com/lumenbridge/gatewayd/pkg/translate"
	"github.com/lumenbridge/gatewayd/pkg/upstream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway wires together every core component behind the single
// translation endpoint.
type Gateway struct {
	Config    *config.Store
	Cache     *cache.Cache
	Queue     *queue.Queue
	Upstream  *upstream.Client
	Counters  *stats.Counters
	MCPBridge *mcpbridge.Manager
	Telemetry *telemetry.Settings
}

// Register mounts the gateway's routes on app.
func (g *Gateway) Register(app *fiber.App) {
	app.Get("/health", g.handleHealth)
	app.Post("/v1/messages", g.handleMessages)
}

func (g *Gateway) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (g *Gateway) handleMessages(c *fiber.Ctx) error {
	cfg := g.Config.Get()

	if !g.authenticate(c, cfg) {
		return writeError(c, apierr.New(apierr.KindAuthentication, "invalid bearer token", nil))
	}

	var req dialect.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return writeError(c, apierr.New(apierr.KindInvalidRequest, "malformed request body", err))
	}

	tracer := telemetry.GetTracer(g.Telemetry)
	ctx, span := tracer.Start(c.Context(), "gateway.handle_messages",
		trace.WithAttributes(
			attribute.String("gateway.model", req.Model),
			attribute.String("gateway.request_id", uuid.New().String()),
		))
	defer span.End()

	label := classify.Classify(&req)
	g.Counters.RecordRequest(label)
	if classify.ShouldStripTools(label) {
		stripped := req
		stripped.Tools = nil
		req = stripped
	}

	g.mergeMCPTools(ctx, &req)

	if !req.Stream {
		return g.serveSync(ctx, c, cfg, &req)
	}
	return g.serveStream(ctx, c, cfg, &req)
}

func (g *Gateway) authenticate(c *fiber.Ctx, cfg config.Config) bool {
	header := c.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimPrefix(header, prefix)
	return token != "" && token == cfg.LocalAPIKey
}

func (g *Gateway) mergeMCPTools(ctx context.Context, req *dialect.Request) {
	if g.MCPBridge == nil {
		return
	}
	req.Tools = g.MCPBridge.MergeTools(ctx, req.Tools)
}

func (g *Gateway) serveSync(ctx context.Context, c *fiber.Ctx, cfg config.Config, req *dialect.Request) error {
	fingerprint, err := cache.Fingerprint(req)
	if err != nil {
		return writeError(c, apierr.New(apierr.KindInvalidRequest, "could not fingerprint request", err))
	}

	if cached, hit := g.Cache.Get(fingerprint); hit {
		c.Set("X-Cache", "HIT")
		g.Counters.RecordCacheHit()
		return c.Status(fiber.StatusOK).JSON(cached)
	}
	c.Set("X-Cache", "MISS")

	release, err := g.Queue.Admit(ctx)
	if err != nil {
		return writeError(c, apierr.New(apierr.KindOverloaded, "queue admission cancelled", err))
	}
	defer release()

	googleReq, err := translate.Request(req)
	if err != nil {
		g.Counters.RecordError()
		return writeError(c, err)
	}

	url := endpoint.Build(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, req.Model, cfg.DefaultModel, false)

	callCtx, cancel := context.WithTimeout(ctx, upstream.DefaultTimeout)
	defer cancel()

	resp, err := g.Upstream.Post(callCtx, url, googleReq)
	if err != nil {
		g.Counters.RecordError()
		return writeError(c, mapUpstreamTransportError(err))
	}
	if resp.StatusCode >= 400 {
		g.Counters.RecordError()
		return writeError(c, mapUpstreamStatus(resp.StatusCode, resp.Body))
	}

	var googleResp dialect.GoogleResponse
	if err := json.Unmarshal(resp.Body, &googleResp); err != nil {
		g.Counters.RecordError()
		return writeError(c, apierr.New(apierr.KindUpstream, "malformed upstream response", err))
	}

	dialectResp, err := translate.Response(&googleResp, req.Model)
	if err != nil {
		g.Counters.RecordError()
		return writeError(c, err)
	}

	g.Cache.Put(fingerprint, dialectResp)
	return c.Status(fiber.StatusOK).JSON(dialectResp)
}

func (g *Gateway) serveStream(ctx context.Context, c *fiber.Ctx, cfg config.Config, req *dialect.Request) error {
	release, err := g.Queue.Admit(ctx)
	if err != nil {
		return writeError(c, apierr.New(apierr.KindOverloaded, "queue admission cancelled", err))
	}

	googleReq, err := translate.Request(req)
	if err != nil {
		release()
		g.Counters.RecordError()
		return writeError(c, err)
	}

	url := endpoint.Build(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, req.Model, cfg.DefaultModel, true)

	callCtx, cancel := context.WithTimeout(ctx, upstream.DefaultTimeout)

	upstreamResp, err := g.Upstream.PostStream(callCtx, url, googleReq)
	if err != nil {
		cancel()
		release()
		g.Counters.RecordError()
		if statusErr, ok := err.(*upstream.StatusError); ok {
			return writeError(c, mapUpstreamStatus(statusErr.StatusCode, statusErr.Body))
		}
		return writeError(c, mapUpstreamTransportError(err))
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	messageID := "msg_" + randomMessageSuffix()
	model := req.Model
	if model == "" {
		model = cfg.DefaultModel
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer release()
		defer upstreamResp.Body.Close()

		writer := streaming.NewSSEWriter(flushWriter{w})
		if err := translate.Stream(callCtx, upstreamResp.Body, writer, messageID, model); err != nil {
			g.Counters.RecordError()
		}
	})

	return nil
}

// flushWriter flushes after every write so SSE events reach the client as
// soon as they're produced instead of waiting for fasthttp's buffer to
// fill.
type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

func randomMessageSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func mapUpstreamStatus(status int, body []byte) *apierr.GatewayError {
	kind := apierr.UpstreamStatusKind(status)
	return apierr.New(kind, "upstream returned an error", nil).WithDetails(string(body))
}

// mapUpstreamTransportError classifies a failure to even reach the upstream
// (as opposed to a non-2xx response from it): a deadline exceeded becomes a
// timeout_error, every other network failure (DNS, connection refused, TLS)
// becomes an api_error.
func mapUpstreamTransportError(err error) *apierr.GatewayError {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.New(apierr.KindTimeout, "upstream request timed out", err)
	}
	return apierr.New(apierr.KindAPI, "upstream request failed", err)
}

func writeError(c *fiber.Ctx, err error) error {
	ge, ok := apierr.As(err)
	if !ok {
		ge = apierr.New(apierr.KindServer, err.Error(), err)
	}
	return c.Status(apierr.HTTPStatusFor(ge.Kind)).JSON(ge.ToEnvelope())
}

// StatsHandler serves the admin/observability stats surface.
func (g *Gateway) StatsHandler(c *fiber.Ctx) error {
	snap := g.Counters.Snapshot()
	return c.JSON(fiber.Map{
		"total":            snap.Total,
		"cached":           snap.Cached,
		"errors":           snap.Errors,
		"byClassification": snap.ByClassification,
		"cacheHitRate":     g.Cache.Stats().HitRate(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
