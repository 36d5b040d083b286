// Package upstream mints chat widget credentials against the hosted
// ChatKit sessions API.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	sessionsPath = "/v1/chatkit/sessions"
	betaHeader   = "chatkit_beta=v1"
)

// Client mints widget sessions. Minting is never retried automatically:
// a failed mint surfaces to the caller, and only an explicit user action
// triggers another attempt.
type Client struct {
	resty  *resty.Client
	logger *logging.Logger
}

// NewClient creates an upstream client from configuration.
func NewClient(cfg config.ChatKitConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("OpenAI-Beta", betaHeader).
		SetTimeout(30 * time.Second).
		SetRetryCount(0)

	return &Client{resty: rc, logger: logger}
}

// MintRequest describes one credential mint.
type MintRequest struct {
	WorkflowID         string
	User               string
	AttachmentsEnabled bool
}

// Session is a freshly minted widget credential.
type Session struct {
	ClientSecret string
	ExpiresAfter int64
	SessionID    string
	UserID       string
	AgentVersion string
}

// Error carries the upstream failure back to the widget with the original
// status code.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("chatkit session mint failed (%d): %s", e.Status, e.Message)
}

type mintBody struct {
	Workflow             workflowRef `json:"workflow"`
	User                 string      `json:"user"`
	ChatKitConfiguration chatkitConf `json:"chatkit_configuration"`
}

type workflowRef struct {
	ID string `json:"id"`
}

type chatkitConf struct {
	FileUpload fileUpload `json:"file_upload"`
}

type fileUpload struct {
	Enabled bool `json:"enabled"`
}

// Mint requests a new session credential. On failure it returns *Error with
// the upstream's own message and status; transport failures map to a 500
// with a generic message.
func (c *Client) Mint(ctx context.Context, req MintRequest) (*Session, error) {
	body := mintBody{
		Workflow: workflowRef{ID: req.WorkflowID},
		User:     req.User,
	}
	body.ChatKitConfiguration.FileUpload.Enabled = req.AttachmentsEnabled

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post(sessionsPath)
	if err != nil {
		c.logger.Error("chatkit session request failed", zap.Error(err))
		return nil, &Error{Message: "upstream unavailable", Status: http.StatusInternalServerError}
	}

	if resp.IsError() {
		mintErr := &Error{
			Message: extractErrorMessage(resp.Body(), resp.Status()),
			Status:  resp.StatusCode(),
		}
		c.logger.Error("chatkit session rejected",
			zap.Int("status", mintErr.Status),
			zap.String("message", mintErr.Message))
		return nil, mintErr
	}

	var payload map[string]any
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		c.logger.Error("chatkit session response unreadable", zap.Error(err))
		return nil, &Error{Message: "invalid upstream response", Status: http.StatusBadGateway}
	}

	session := &Session{
		ClientSecret: stringField(payload, "client_secret"),
		ExpiresAfter: int64(numberField(payload, "expires_after")),
		SessionID:    stringField(payload, "id"),
		UserID:       stringField(payload, "user"),
		AgentVersion: extractAgentVersion(payload),
	}
	if session.ClientSecret == "" {
		return nil, &Error{Message: "upstream returned no client secret", Status: http.StatusBadGateway}
	}
	// The backend may omit these; callers fall back to the resolved identity.
	if session.SessionID == "" {
		session.SessionID = req.User
	}
	if session.UserID == "" {
		session.UserID = req.User
	}
	return session, nil
}

// extractAgentVersion checks the response keys version information has been
// observed under, most specific first.
func extractAgentVersion(payload map[string]any) string {
	for _, key := range []string{"agent_version", "workflow_version", "version"} {
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	for _, parent := range []string{"workflow", "agent"} {
		if nested, ok := payload[parent].(map[string]any); ok {
			if v := stringField(nested, "version"); v != "" {
				return v
			}
		}
	}
	return ""
}

// extractErrorMessage digs the human-readable message out of the upstream
// error payload. The shapes vary, so the lookup follows a fixed precedence:
// error (string), error.message, details (string), details.error,
// details.error.message, message, then the HTTP status text.
func extractErrorMessage(body []byte, statusText string) string {
	var payload map[string]any
	if err := sonic.Unmarshal(body, &payload); err != nil || payload == nil {
		return statusText
	}

	if v, ok := payload["error"].(string); ok && v != "" {
		return v
	}
	if nested, ok := payload["error"].(map[string]any); ok {
		if v := stringField(nested, "message"); v != "" {
			return v
		}
	}
	if v, ok := payload["details"].(string); ok && v != "" {
		return v
	}
	if details, ok := payload["details"].(map[string]any); ok {
		if v, ok := details["error"].(string); ok && v != "" {
			return v
		}
		if nested, ok := details["error"].(map[string]any); ok {
			if v := stringField(nested, "message"); v != "" {
				return v
			}
		}
	}
	if v := stringField(payload, "message"); v != "" {
		return v
	}
	return statusText
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func numberField(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}
