package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/identity"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/24ep/chatkit-starter/internal/metadata"
	"github.com/24ep/chatkit-starter/internal/monitoring"
	"github.com/24ep/chatkit-starter/internal/observe"
	"github.com/24ep/chatkit-starter/internal/session"
	"github.com/24ep/chatkit-starter/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const mintTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced by the CORS middleware
	},
}

// signal is an inbound lifecycle frame. Fields beyond Type are optional
// and depend on the signal.
type signal struct {
	Type     string                   `json:"type"`
	Tool     string                   `json:"tool,omitempty"`
	Args     map[string]any           `json:"args,omitempty"`
	ThreadID string                   `json:"threadId,omitempty"`
	Reason   string                   `json:"reason,omitempty"`
	Payload  map[string]any           `json:"payload,omitempty"`
	Model    string                   `json:"model,omitempty"`
	Usage    *observe.TokenUsage      `json:"usage,omitempty"`
	Cost     *float64                 `json:"cost,omitempty"`
	Client   *metadata.ClientSnapshot `json:"client,omitempty"`
}

// completion collects the model-reported fields of a responseEnd signal,
// or nil when the widget sent none.
func (s signal) completion() *observe.Completion {
	if s.Model == "" && s.Usage == nil && s.Cost == nil {
		return nil
	}
	return &observe.Completion{Model: s.Model, Usage: s.Usage, Cost: s.Cost}
}

// Handler manages lifecycle signal streams.
type Handler struct {
	cfg      *config.Config
	resolver *identity.Resolver
	minter   session.Minter
	recorder *observe.Recorder
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(
	cfg *config.Config,
	resolver *identity.Resolver,
	minter session.Minter,
	recorder *observe.Recorder,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		resolver: resolver,
		minter:   minter,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// recorderAdapter exposes *observe.Recorder through the controller's
// interface, mapping a nil trace pointer to a nil interface.
type recorderAdapter struct {
	r *observe.Recorder
}

func (a recorderAdapter) OpenTrace(userID, sessionID string, eventMeta map[string]any, req *http.Request, snap *metadata.ClientSnapshot) session.Trace {
	if tr := a.r.OpenTrace(userID, sessionID, eventMeta, req, snap); tr != nil {
		return tr
	}
	return nil
}

func (a recorderAdapter) Enabled() bool { return a.r.Enabled() }

// HandleConnection upgrades the request and runs the signal loop. The
// identity cookie, when freshly minted, rides on the upgrade response.
func (h *Handler) HandleConnection(c *gin.Context) {
	resolution := h.resolver.Resolve(c.GetHeader("Cookie"))

	var respHeader http.Header
	if resolution.SetCookie != "" {
		respHeader = http.Header{"Set-Cookie": []string{resolution.SetCookie}}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	ctrl := session.NewController(
		session.Config{
			WorkflowID:         h.cfg.ChatKit.WorkflowID,
			AttachmentsEnabled: false,
		},
		h.minter,
		recorderAdapter{r: h.recorder},
		h.logger,
		session.Callbacks{
			OnFact: func(factID, text string) {
				h.send(conn, gin.H{"type": "factRecorded", "factId": factID, "factText": text})
			},
			OnTheme: func(theme string) {
				h.send(conn, gin.H{"type": "themeChanged", "theme": theme})
			},
		},
	)
	defer ctrl.Shutdown()
	ctrl.StartScriptWatch()

	h.send(conn, gin.H{"type": "system", "state": ctrl.State().String()})

	reqCtx := c.Request.Context()
	for {
		var msg signal
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if h.metrics != nil {
			h.metrics.RecordSignal(msg.Type)
		}
		h.dispatch(conn, ctrl, reqCtx, resolution.UserID, msg)
	}
}

func (h *Handler) dispatch(conn *websocket.Conn, ctrl *session.Controller, reqCtx context.Context, userID string, msg signal) {
	switch msg.Type {
	case "scriptReady":
		ctrl.MarkScriptReady()
		h.sendState(conn, ctrl)
	case "mint", "sessionMinted":
		h.handleMint(conn, ctrl, reqCtx, userID, msg)
	case "responseStart":
		ctrl.HandleResponseStart(msg.Payload)
	case "responseEnd":
		ctrl.HandleResponseEnd(msg.Payload, msg.completion())
	case "toolInvoked":
		ctrl.HandleTool(msg.Tool, msg.Args)
	case "threadChanged":
		ctrl.HandleThreadChange(msg.ThreadID)
	case "resetRequested":
		reason := msg.Reason
		if reason == "" {
			reason = "user_reset"
		}
		ctrl.Reset(reason)
		h.sendState(conn, ctrl)
	case "error":
		ctrl.HandleError(msg.Payload)
	case "ping":
		h.send(conn, gin.H{"type": "pong"})
	default:
		h.sendError(conn, "unknown signal type")
	}
}

func (h *Handler) handleMint(conn *websocket.Conn, ctrl *session.Controller, reqCtx context.Context, userID string, msg signal) {
	ctx, cancel := context.WithTimeout(reqCtx, mintTimeout)
	defer cancel()

	minted, err := ctrl.RequestMint(ctx, userID, msg.Client, nil)
	if err != nil {
		message := err.Error()
		var upErr *upstream.Error
		if errors.As(err, &upErr) {
			message = upErr.Message
		}
		if h.metrics != nil {
			h.metrics.RecordMint("upstream_error")
		}
		h.send(conn, gin.H{"type": "error", "error": message, "state": ctrl.State().String()})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMint("success")
	}
	h.send(conn, gin.H{
		"type":          "sessionMinted",
		"client_secret": minted.ClientSecret,
		"expires_after": minted.ExpiresAfter,
		"user_id":       minted.UserID,
		"session_id":    minted.SessionID,
		"state":         ctrl.State().String(),
	})
}

func (h *Handler) sendState(conn *websocket.Conn, ctrl *session.Controller) {
	h.send(conn, gin.H{"type": "state", "state": ctrl.State().String()})
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, gin.H{"type": "error", "error": message})
}

func (h *Handler) send(conn *websocket.Conn, payload gin.H) {
	if err := conn.WriteJSON(payload); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}
