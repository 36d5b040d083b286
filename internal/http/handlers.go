package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/identity"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/24ep/chatkit-starter/internal/metadata"
	"github.com/24ep/chatkit-starter/internal/monitoring"
	"github.com/24ep/chatkit-starter/internal/observe"
	"github.com/24ep/chatkit-starter/internal/upstream"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Minter mints upstream credentials.
type Minter interface {
	Mint(ctx context.Context, req upstream.MintRequest) (*upstream.Session, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	cfg      *config.Config
	resolver *identity.Resolver
	minter   Minter
	recorder *observe.Recorder
	preset   *config.WidgetPreset
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(
	cfg *config.Config,
	resolver *identity.Resolver,
	minter Minter,
	recorder *observe.Recorder,
	preset *config.WidgetPreset,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		cfg:      cfg,
		resolver: resolver,
		minter:   minter,
		recorder: recorder,
		preset:   preset,
		metrics:  metrics,
		logger:   logger,
	}
}

// Root handles the basic liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "ChatKit Session Service (Go)",
		"version": h.cfg.App.Version,
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"upstream": gin.H{"configured": h.cfg.ChatKit.APIKey != ""},
		"tracing":  gin.H{"enabled": h.recorder.Enabled()},
	})
}

// WidgetPreset serves the widget presentation configuration.
func (h *Handlers) WidgetPreset(c *gin.Context) {
	c.JSON(http.StatusOK, h.preset)
}

// createSessionRequest is the tolerated request shape. Every field is
// optional; older embeds send workflowId at the top level, newer ones nest
// it under workflow.id.
type createSessionRequest struct {
	Workflow struct {
		ID string `json:"id"`
	} `json:"workflow"`
	WorkflowID           string `json:"workflowId"`
	ChatKitConfiguration struct {
		FileUpload struct {
			Enabled bool `json:"enabled"`
		} `json:"file_upload"`
	} `json:"chatkit_configuration"`
	Client *metadata.ClientSnapshot `json:"client"`
}

func (r createSessionRequest) workflowID(fallback string) string {
	if r.Workflow.ID != "" {
		return r.Workflow.ID
	}
	if r.WorkflowID != "" {
		return r.WorkflowID
	}
	return fallback
}

// CreateSession resolves the caller's durable identity, mints a widget
// credential upstream, and returns it. The identity cookie is (re)issued
// whenever a new token was minted, including on upstream failure, so the
// identity survives a failed attempt. Mints are never retried here.
func (h *Handlers) CreateSession(c *gin.Context) {
	resolution := h.resolver.Resolve(c.GetHeader("Cookie"))

	var req createSessionRequest
	// An empty or malformed body is fine; all fields have fallbacks.
	_ = c.ShouldBindJSON(&req)

	workflowID := req.workflowID(h.cfg.ChatKit.WorkflowID)
	if workflowID == "" {
		h.recordMint("missing_workflow")
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow id is required"})
		return
	}

	if resolution.SetCookie != "" {
		c.Header("Set-Cookie", resolution.SetCookie)
	}

	minted, err := h.minter.Mint(c.Request.Context(), upstream.MintRequest{
		WorkflowID:         workflowID,
		User:               resolution.UserID,
		AttachmentsEnabled: req.ChatKitConfiguration.FileUpload.Enabled,
	})
	if err != nil {
		h.recordMint("upstream_error")
		h.recordMintFailure(resolution.UserID, workflowID, err, c.Request, req.Client)

		status := http.StatusInternalServerError
		message := "failed to create session"
		var mintErr *upstream.Error
		if errors.As(err, &mintErr) {
			status = mintErr.Status
			message = mintErr.Message
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	h.recordMint("success")
	h.openSessionTrace(resolution.UserID, workflowID, minted, req, c.Request)

	c.JSON(http.StatusOK, gin.H{
		"client_secret": minted.ClientSecret,
		"expires_after": minted.ExpiresAfter,
		"user_id":       minted.UserID,
		"session_id":    minted.SessionID,
	})
}

func (h *Handlers) recordMint(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordMint(outcome)
	}
}

func (h *Handlers) openSessionTrace(userID, workflowID string, minted *upstream.Session, req createSessionRequest, r *http.Request) {
	eventMeta := map[string]any{
		"action":            "session_created",
		"workflowId":        workflowID,
		"sessionExpiresAt":  minted.ExpiresAfter,
		"fileUploadEnabled": req.ChatKitConfiguration.FileUpload.Enabled,
	}
	if minted.AgentVersion != "" {
		eventMeta["agentVersion"] = minted.AgentVersion
	}
	h.recorder.OpenTrace(userID, minted.SessionID, eventMeta, r, req.Client)
}

// recordMintFailure opens a short-lived error trace carrying one span. The
// handle is dropped immediately; failures here are logged and swallowed.
func (h *Handlers) recordMintFailure(userID, workflowID string, mintErr error, r *http.Request, snap *metadata.ClientSnapshot) {
	if userID == "" {
		return
	}
	tr := h.recorder.OpenTrace(userID, userID, map[string]any{
		"action":     "session_error",
		"workflowId": workflowID,
	}, r, snap)
	if tr == nil {
		return
	}

	input := map[string]any{"error": mintErr.Error()}
	var upErr *upstream.Error
	if errors.As(mintErr, &upErr) {
		input["error"] = upErr.Message
		input["status"] = upErr.Status
	}
	tr.AppendSpan("session_error", input, nil, nil)
	h.logger.Debug("recorded session mint failure", zap.String("user_id", userID))
}
