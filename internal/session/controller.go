// Package session drives the lifecycle of one widget session: script
// readiness, credential minting, response timing, tool side effects, and
// reset. All tracing it performs is best-effort; a disabled or failing
// observability backend never changes lifecycle behavior.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/24ep/chatkit-starter/internal/metadata"
	"github.com/24ep/chatkit-starter/internal/observe"
	"github.com/24ep/chatkit-starter/internal/upstream"
	"go.uber.org/zap"
)

// DefaultScriptTimeout bounds how long the controller waits for the widget
// script to load before declaring it unavailable.
const DefaultScriptTimeout = 5 * time.Second

var (
	// ErrInvalidState signals an operation the current state does not allow.
	ErrInvalidState = errors.New("session state does not allow this operation")
	// ErrTerminal signals the session ended in a non-recoverable state.
	ErrTerminal = errors.New("session is in a terminal state")
)

// Minter mints upstream credentials.
type Minter interface {
	Mint(ctx context.Context, req upstream.MintRequest) (*upstream.Session, error)
}

// Trace is the trace handle the controller drives. Implementations must
// tolerate being called after the underlying trace closed.
type Trace interface {
	ID() string
	AppendSpan(name string, input, output any, meta map[string]any)
	OpenGeneration(name string, seq int, input any, meta map[string]any)
	CloseGeneration(output any, comp *observe.Completion, meta map[string]any)
	Close(final map[string]any)
	Stats() observe.Stats
}

// Recorder opens traces. A nil Trace return means tracing is unavailable
// for this session.
type Recorder interface {
	OpenTrace(userID, sessionID string, eventMeta map[string]any, req *http.Request, snap *metadata.ClientSnapshot) Trace
	Enabled() bool
}

// Callbacks carry tool side effects out of the controller.
type Callbacks struct {
	OnFact        func(factID, text string)
	OnTheme       func(theme string)
	OnResponseEnd func()
}

// Config parameterizes a controller.
type Config struct {
	WorkflowID         string
	AttachmentsEnabled bool
	ScriptTimeout      time.Duration
}

// Controller is the single decision point for one widget session. Each
// session owns exactly one controller, and signals are delivered to it
// sequentially.
type Controller struct {
	mu        sync.Mutex
	state     State
	cfg       Config
	minter    Minter
	recorder  Recorder
	logger    *logging.Logger
	callbacks Callbacks

	userID        string
	sessionID     string
	trace         Trace
	responseSeq   int
	openSeq       bool
	threadChanges int
	seenFacts     map[string]struct{}
	scriptTimer   *time.Timer
}

// NewController creates a controller in the Uninitialized state.
func NewController(cfg Config, minter Minter, recorder Recorder, logger *logging.Logger, callbacks Callbacks) *Controller {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultScriptTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		state:     StateUninitialized,
		cfg:       cfg,
		minter:    minter,
		recorder:  recorder,
		logger:    logger,
		callbacks: callbacks,
		seenFacts: make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the resolved identity, if any.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// StartScriptWatch arms the script-load deadline. If MarkScriptReady does
// not arrive in time the session moves to ScriptUnavailable and stays there.
func (c *Controller) StartScriptWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized || c.scriptTimer != nil {
		return
	}
	c.scriptTimer = time.AfterFunc(c.cfg.ScriptTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != StateUninitialized {
			return
		}
		c.state = StateScriptUnavailable
		c.logger.Warn("widget script did not load",
			zap.Duration("timeout", c.cfg.ScriptTimeout))
	})
}

// MarkScriptReady records that the widget script loaded.
func (c *Controller) MarkScriptReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopScriptTimerLocked()
	if c.state == StateUninitialized {
		c.state = StateAwaitingCredential
	}
}

func (c *Controller) stopScriptTimerLocked() {
	if c.scriptTimer != nil {
		c.scriptTimer.Stop()
		c.scriptTimer = nil
	}
}

// RequestMint mints a credential for the resolved identity and, on success,
// opens the session trace and activates the session. A failed mint is
// terminal for this controller and is never retried automatically; the
// failure is recorded as a single error span on a short-lived trace, and
// only when the identity was already resolved.
func (c *Controller) RequestMint(ctx context.Context, userID string, snap *metadata.ClientSnapshot, req *http.Request) (*upstream.Session, error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return nil, ErrTerminal
	}
	if c.state != StateAwaitingCredential {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	c.userID = userID
	c.mu.Unlock()

	minted, err := c.minter.Mint(ctx, upstream.MintRequest{
		WorkflowID:         c.cfg.WorkflowID,
		User:               userID,
		AttachmentsEnabled: c.cfg.AttachmentsEnabled,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateCredentialError
		c.recordMintFailureLocked(err, req, snap)
		return nil, err
	}

	c.sessionID = minted.SessionID
	c.trace = c.openSessionTraceLocked(minted, req, snap)
	c.state = StateActive
	c.logger.Info("session activated",
		zap.String("session_id", minted.SessionID),
		zap.String("user_id", minted.UserID))
	return minted, nil
}

func (c *Controller) openSessionTraceLocked(minted *upstream.Session, req *http.Request, snap *metadata.ClientSnapshot) Trace {
	if c.recorder == nil {
		return nil
	}
	eventMeta := map[string]any{
		"action":            "session_created",
		"sessionExpiresAt":  minted.ExpiresAfter,
		"fileUploadEnabled": c.cfg.AttachmentsEnabled,
	}
	if minted.AgentVersion != "" {
		eventMeta["agentVersion"] = minted.AgentVersion
	}
	return c.recorder.OpenTrace(c.userID, c.sessionID, eventMeta, req, snap)
}

// recordMintFailureLocked opens a short-lived trace carrying exactly one
// error span, then discards the handle. Skipped when identity never
// resolved; there is nothing meaningful to attribute the failure to.
func (c *Controller) recordMintFailureLocked(mintErr error, req *http.Request, snap *metadata.ClientSnapshot) {
	if c.recorder == nil || c.userID == "" {
		return
	}
	eventMeta := map[string]any{"action": "session_error"}
	tr := c.recorder.OpenTrace(c.userID, c.userID, eventMeta, req, snap)
	if tr == nil {
		return
	}
	input := map[string]any{"error": mintErr.Error()}
	var upErr *upstream.Error
	if errors.As(mintErr, &upErr) {
		input["status"] = upErr.Status
	}
	tr.AppendSpan("session_error", input, nil, nil)
}

// HandleResponseStart begins timing an assistant response. A repeated
// start without an intervening end re-times the same response; the later
// start wins.
func (c *Controller) HandleResponseStart(input any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return
	}
	if !c.openSeq {
		c.responseSeq++
		c.openSeq = true
	}
	if c.trace != nil {
		c.trace.OpenGeneration("assistant_response", c.responseSeq, input, map[string]any{
			"messageNumber": c.responseSeq,
		})
		c.trace.AppendSpan("response_started", input, nil, map[string]any{
			"messageNumber": c.responseSeq,
		})
	}
}

// HandleResponseEnd completes the current response. Without a matching
// start this is a no-op.
func (c *Controller) HandleResponseEnd(output any, comp *observe.Completion) {
	c.mu.Lock()
	if c.state != StateActive || !c.openSeq {
		c.mu.Unlock()
		return
	}
	c.openSeq = false
	if c.trace != nil {
		c.trace.CloseGeneration(output, comp, nil)
		stats := c.trace.Stats()
		meta := map[string]any{
			"messageNumber":      c.responseSeq,
			"totalResponses":     stats.TotalResponses,
			"completedResponses": stats.CompletedResponses,
		}
		if stats.AvgLatencyMs != nil {
			meta["averageResponseLatencyMs"] = *stats.AvgLatencyMs
		}
		c.trace.AppendSpan("response_completed", nil, output, meta)
	}
	cb := c.callbacks.OnResponseEnd
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// HandleTool processes a client tool invocation.
func (c *Controller) HandleTool(name string, args map[string]any) {
	switch name {
	case "record_fact":
		c.handleRecordFact(args)
	case "switch_theme":
		c.handleSwitchTheme(args)
	default:
		c.logger.Debug("unhandled client tool", zap.String("tool", name))
	}
}

func (c *Controller) handleRecordFact(args map[string]any) {
	factID := firstString(args, "fact_id", "factId", "id")
	text := normalizeFact(firstString(args, "fact_text", "factText", "text"))
	if factID == "" || text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	_, seen := c.seenFacts[factID]
	// Telemetry is never suppressed; dedup applies to the side effect only.
	if c.trace != nil {
		c.trace.AppendSpan("record_fact",
			map[string]any{"factId": factID, "factText": text, "duplicate": seen}, nil, nil)
	}
	if seen {
		c.mu.Unlock()
		return
	}
	c.seenFacts[factID] = struct{}{}
	cb := c.callbacks.OnFact
	c.mu.Unlock()

	if cb != nil {
		cb(factID, text)
	}
}

func (c *Controller) handleSwitchTheme(args map[string]any) {
	theme := firstString(args, "theme", "scheme")
	if theme != "light" && theme != "dark" {
		return
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if c.trace != nil {
		c.trace.AppendSpan("switch_theme", map[string]any{"theme": theme}, nil, nil)
	}
	cb := c.callbacks.OnTheme
	c.mu.Unlock()

	if cb != nil {
		cb(theme)
	}
}

// HandleThreadChange resets per-thread tracking. Facts recorded in the
// previous thread become recordable again.
func (c *Controller) HandleThreadChange(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return
	}
	c.seenFacts = make(map[string]struct{})
	c.threadChanges++
	if c.trace != nil {
		c.trace.AppendSpan("thread_changed",
			map[string]any{"threadId": threadID, "threadChanges": c.threadChanges}, nil, nil)
	}
}

// HandleError records a widget-reported error. The session stays usable;
// widget errors are diagnostics, not lifecycle events.
func (c *Controller) HandleError(payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.trace == nil {
		return
	}
	c.trace.AppendSpan("chat_error", payload, nil, nil)
}

// Reset closes the trace with final timing aggregates and returns the
// session to AwaitingCredential. Identity is preserved; counters and the
// fact dedup set are not. Reset is also the manual recovery path out of
// CredentialError; ScriptUnavailable stays absorbing.
func (c *Controller) Reset(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive && c.state != StateCredentialError {
		return
	}
	c.state = StateResetting

	if c.trace != nil {
		c.trace.Close(map[string]any{"reason": reason})
	}
	c.trace = nil
	c.responseSeq = 0
	c.openSeq = false
	c.threadChanges = 0
	c.sessionID = ""
	c.seenFacts = make(map[string]struct{})

	c.state = StateAwaitingCredential
	c.logger.Info("session reset", zap.String("reason", reason), zap.String("user_id", c.userID))
}

// Shutdown releases the controller without recording a reset. Used when
// the transport drops.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopScriptTimerLocked()
	if c.trace != nil {
		c.trace.Close(map[string]any{"reason": "disconnect"})
		c.trace = nil
	}
}

func firstString(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// normalizeFact collapses runs of whitespace so dedup and recording see a
// canonical form.
func normalizeFact(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
