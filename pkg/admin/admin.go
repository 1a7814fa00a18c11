// Package admin implements Component J, the admin surface: the
// session-gated handlers that let an operator read and rewrite the running
// Configuration, test the configured upstream, rotate the local API key,
// and change the admin password. It follows the same Fiber handler idiom
// as pkg/gateway, scoped to the config/session packages rather than the
// translate/cache/queue pipeline.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbridge/gatewayd/pkg/apierr"
	"github.com/lumenbridge/gatewayd/pkg/config"
	"github.com/lumenbridge/gatewayd/pkg/dialect"
	"github.com/lumenbridge/gatewayd/pkg/endpoint"
	"github.com/lumenbridge/gatewayd/pkg/session"
	"github.com/lumenbridge/gatewayd/pkg/upstream"
)

// Handler exposes the admin HTTP surface.
type Handler struct {
	Config   *config.Store
	Sessions *session.Store
	Upstream *upstream.Client
}

// Register mounts the admin routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Post("/api/login", h.Login)
	app.Get("/api/config", h.requireSession(h.GetConfig))
	app.Post("/api/config", h.requireSession(h.PutConfig))
	app.Post("/api/test-connection", h.requireSession(h.TestConnection))
	app.Post("/api/generate-key", h.requireSession(h.GenerateKey))
	app.Post("/api/change-password", h.requireSession(h.ChangePassword))
}

func (h *Handler) requireSession(next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return writeError(c, apierr.New(apierr.KindAuthentication, "missing admin session token", nil))
		}
		token := strings.TrimPrefix(header, prefix)
		if !h.Sessions.Validate(token) {
			return writeError(c, apierr.New(apierr.KindAuthentication, "admin session expired or unknown", nil))
		}
		return next(c)
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login verifies the admin password — which may still be a first-boot
// plaintext bootstrap value — and issues a session token. A successful
// login against a plaintext bootstrap value rehashes it before responding.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return writeError(c, apierr.New(apierr.KindInvalidRequest, "malformed login body", err))
	}

	cfg := h.Config.Get()
	ok, needsRehash := config.VerifySecret(cfg.AdminSecret, req.Password)
	if !ok {
		return writeError(c, apierr.New(apierr.KindAuthentication, "invalid admin password", nil))
	}

	if needsRehash {
		hashed, err := config.HashSecret(req.Password)
		if err == nil {
			h.Config.Update(func(c *config.Config) { c.AdminSecret = hashed })
		}
	}

	sess, err := h.Sessions.Create()
	if err != nil {
		return writeError(c, apierr.New(apierr.KindServer, "could not create admin session", err))
	}
	return c.Status(fiber.StatusOK).JSON(loginResponse{Token: sess.Token})
}

// GetConfig returns the current configuration with the admin secret
// redacted.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(h.Config.Get().Redacted())
}

// configPatch mirrors config.Config's mutable fields as pointers so a field
// absent from the request body can be told apart from one sent as its zero
// value: nil means "leave it alone", non-nil means "set it", including to
// empty/zero.
type configPatch struct {
	UpstreamBaseURL     *string             `json:"upstreamBaseURL"`
	UpstreamAPIKey      *string             `json:"upstreamApiKey"`
	DefaultModel        *string             `json:"defaultModel"`
	MCPServers          *[]config.MCPServer `json:"mcpServers"`
	MaxRequestBodyBytes *int                `json:"maxRequestBodyBytes"`
}

// PutConfig applies a merge patch to the running configuration: only fields
// present in the request body are changed, so an admin can update a single
// field (e.g. just defaultModel) without erasing the others. The admin
// secret is never touched here — ChangePassword is the dedicated path for
// that.
func (h *Handler) PutConfig(c *fiber.Ctx) error {
	var patch configPatch
	if err := json.Unmarshal(c.Body(), &patch); err != nil {
		return writeError(c, apierr.New(apierr.KindInvalidRequest, "malformed config body", err))
	}

	updated, err := h.Config.Update(func(current *config.Config) {
		if patch.UpstreamBaseURL != nil {
			current.UpstreamBaseURL = *patch.UpstreamBaseURL
		}
		if patch.UpstreamAPIKey != nil {
			current.UpstreamAPIKey = *patch.UpstreamAPIKey
		}
		if patch.DefaultModel != nil {
			current.DefaultModel = *patch.DefaultModel
		}
		if patch.MCPServers != nil {
			current.MCPServers = *patch.MCPServers
		}
		if patch.MaxRequestBodyBytes != nil && *patch.MaxRequestBodyBytes > 0 {
			current.MaxRequestBodyBytes = *patch.MaxRequestBodyBytes
		}
	})
	if err != nil {
		return writeError(c, apierr.New(apierr.KindValidation, err.Error(), err))
	}
	return c.JSON(updated.Redacted())
}

type testConnectionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// TestConnection issues a minimal request against the configured upstream
// to confirm the base URL and API key are usable, without routing through
// the translation pipeline.
func (h *Handler) TestConnection(c *fiber.Ctx) error {
	cfg := h.Config.Get()
	if err := cfg.Validate(); err != nil {
		return c.JSON(testConnectionResponse{OK: false, Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	url := endpoint.Build(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, cfg.DefaultModel, cfg.DefaultModel, false)
	probe := dialect.GoogleRequest{
		Contents: []dialect.GoogleContent{{
			Role:  "user",
			Parts: []dialect.GooglePart{{Text: "ping"}},
		}},
	}
	resp, err := h.Upstream.Post(ctx, url, probe)
	if err != nil {
		return c.JSON(testConnectionResponse{OK: false, Message: err.Error()})
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return c.JSON(testConnectionResponse{OK: false, Message: "upstream responded with an error status"})
	}
	return c.JSON(testConnectionResponse{OK: true})
}

type generateKeyResponse struct {
	LocalAPIKey string `json:"localApiKey"`
}

// GenerateKey rotates the local API key clients authenticate with.
func (h *Handler) GenerateKey(c *fiber.Ctx) error {
	newKey, err := config.GenerateLocalAPIKey()
	if err != nil {
		return writeError(c, apierr.New(apierr.KindServer, "could not generate key", err))
	}

	if _, err := h.Config.Update(func(current *config.Config) {
		current.LocalAPIKey = newKey
	}); err != nil {
		return writeError(c, apierr.New(apierr.KindServer, "could not persist new key", err))
	}
	return c.JSON(generateKeyResponse{LocalAPIKey: newKey})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword verifies the current admin password and replaces it with
// a freshly bcrypt-hashed new one, invalidating every existing admin
// session.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return writeError(c, apierr.New(apierr.KindInvalidRequest, "malformed change-password body", err))
	}
	if req.NewPassword == "" {
		return writeError(c, apierr.New(apierr.KindValidation, "newPassword is required", nil))
	}

	cfg := h.Config.Get()
	ok, _ := config.VerifySecret(cfg.AdminSecret, req.CurrentPassword)
	if !ok {
		return writeError(c, apierr.New(apierr.KindAuthentication, "current password is incorrect", nil))
	}

	hashed, err := config.HashSecret(req.NewPassword)
	if err != nil {
		return writeError(c, apierr.New(apierr.KindServer, "could not hash new password", err))
	}

	if _, err := h.Config.Update(func(current *config.Config) {
		current.AdminSecret = hashed
	}); err != nil {
		return writeError(c, apierr.New(apierr.KindServer, "could not persist new password", err))
	}

	h.Sessions.Clear()
	return c.JSON(fiber.Map{"ok": true})
}

func writeError(c *fiber.Ctx, err error) error {
	ge, ok := apierr.As(err)
	if !ok {
		ge = apierr.New(apierr.KindServer, err.Error(), err)
	}
	return c.Status(apierr.HTTPStatusFor(ge.Kind)).JSON(ge.ToEnvelope())
}
