package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.ChatKitConfig{
		APIBase: baseURL,
		APIKey:  "sk-test",
	}, logging.NewNop())
}

func TestMintSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chatkit/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "chatkit_beta=v1", r.Header.Get("OpenAI-Beta"))

		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"client_secret":"cs_123","expires_after":1717245600,"id":"cksess_1","user":"user-1","workflow":{"id":"wf_1","version":"27.1.0"}}`)
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{
		WorkflowID:         "wf_1",
		User:               "user-1",
		AttachmentsEnabled: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_123", session.ClientSecret)
	assert.Equal(t, int64(1717245600), session.ExpiresAfter)
	assert.Equal(t, "cksess_1", session.SessionID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "27.1.0", session.AgentVersion)

	workflow, _ := gotBody["workflow"].(map[string]any)
	assert.Equal(t, "wf_1", workflow["id"])
	assert.Equal(t, "user-1", gotBody["user"])
	conf, _ := gotBody["chatkit_configuration"].(map[string]any)
	upload, _ := conf["file_upload"].(map[string]any)
	assert.Equal(t, true, upload["enabled"])
}

func TestMintDefaultsIdentityFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"client_secret":"cs_123","expires_after":60}`)
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{
		WorkflowID: "wf_1",
		User:       "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.SessionID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Empty(t, session.AgentVersion)
}

func TestMintUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error string", 401, `{"error":"invalid api key"}`, "invalid api key"},
		{"error object", 400, `{"error":{"message":"workflow not found"}}`, "workflow not found"},
		{"details string", 422, `{"details":"workflow disabled"}`, "workflow disabled"},
		{"details nested error", 403, `{"details":{"error":{"message":"forbidden workflow"}}}`, "forbidden workflow"},
		{"message", 429, `{"message":"rate limited"}`, "rate limited"},
		{"unparseable", 502, `<html>bad gateway</html>`, "502 Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{WorkflowID: "wf_1", User: "user-1"})
			require.Error(t, err)

			var mintErr *Error
			require.ErrorAs(t, err, &mintErr)
			assert.Equal(t, tt.status, mintErr.Status)
			assert.Equal(t, tt.wantMsg, mintErr.Message)
		})
	}
}

func TestMintDoesNotRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"transient"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{WorkflowID: "wf_1", User: "user-1"})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestMintTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{WorkflowID: "wf_1", User: "user-1"})
	var mintErr *Error
	require.ErrorAs(t, err, &mintErr)
	assert.Equal(t, http.StatusInternalServerError, mintErr.Status)
	assert.Equal(t, "upstream unavailable", mintErr.Message)
}

func TestMintMissingClientSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"expires_after":60}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Mint(context.Background(), MintRequest{WorkflowID: "wf_1", User: "user-1"})
	var mintErr *Error
	require.ErrorAs(t, err, &mintErr)
	assert.Equal(t, http.StatusBadGateway, mintErr.Status)
}
