package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		wantIP     string
		wantSource string
	}{
		{
			name:       "cloudflare wins over forwarded-for",
			headers:    map[string]string{"Cf-Connecting-Ip": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"},
			wantIP:     "203.0.113.7",
			wantSource: "cf-connecting-ip",
		},
		{
			name:       "loopback cloudflare skipped",
			headers:    map[string]string{"Cf-Connecting-Ip": "127.0.0.1", "X-Real-Ip": "198.51.100.9"},
			wantIP:     "198.51.100.9",
			wantSource: "x-real-ip",
		},
		{
			name:       "forwarded-for first non-loopback entry",
			headers:    map[string]string{"X-Forwarded-For": "127.0.0.1, 203.0.113.50, 10.0.0.1"},
			wantIP:     "203.0.113.50",
			wantSource: "x-forwarded-for",
		},
		{
			name:       "true-client-ip",
			headers:    map[string]string{"True-Client-Ip": "192.0.2.44"},
			wantIP:     "192.0.2.44",
			wantSource: "true-client-ip",
		},
		{
			name:       "x-forwarded alternative format",
			headers:    map[string]string{"X-Forwarded": `for="203.0.113.60"; proto=https`},
			wantIP:     "203.0.113.60",
			wantSource: "x-forwarded",
		},
		{
			name:    "nothing usable",
			headers: map[string]string{"X-Forwarded-For": "::1, 127.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			ip, source := ResolveClientIP(h)
			assert.Equal(t, tt.wantIP, ip)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestRequestMetadata(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://chat.example.com/api/create-session?x=1", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Referer", "https://example.com/page")
	req.Header.Set("Accept-Language", "th-TH")
	req.Header.Set("X-Forwarded-For", "2001:db8::1")
	req.Header.Set("Cf-Ipcountry", "TH")
	req.Header.Set("Cf-Ray", "abc123")

	m := Request(req)

	assert.Equal(t, "test-agent", m["userAgent"])
	assert.Equal(t, "https://example.com/page", m["referer"])
	assert.Equal(t, "th-TH", m["acceptLanguage"])
	assert.Equal(t, "2001:db8::1", m["ip"])
	assert.Equal(t, "ipv6", m["ipType"])

	cf, ok := m["cloudflare"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TH", cf["country"])

	reqURL, ok := m["requestUrl"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/api/create-session", reqURL["pathname"])
}

func TestRequestLocalhostFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8000/health", nil)

	m := Request(req)
	assert.Equal(t, "localhost", m["ip"])
	assert.Equal(t, "local-development", m["ipSource"])
}

func TestRequestNil(t *testing.T) {
	assert.Empty(t, Request(nil))
}
