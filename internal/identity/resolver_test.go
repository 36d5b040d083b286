package identity

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidShape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestResolveMintsNewToken(t *testing.T) {
	r := NewResolver(false)

	res := r.Resolve("")

	require.NotEmpty(t, res.UserID)
	assert.Regexp(t, uuidShape, res.UserID)
	assert.Contains(t, res.SetCookie, CookieName+"="+res.UserID)
	assert.Contains(t, res.SetCookie, "Path=/")
	assert.Contains(t, res.SetCookie, "Max-Age=2592000")
	assert.Contains(t, res.SetCookie, "HttpOnly")
	assert.Contains(t, res.SetCookie, "SameSite=Lax")
	assert.NotContains(t, res.SetCookie, "Secure")
}

func TestResolveProductionAddsSecure(t *testing.T) {
	r := NewResolver(true)

	res := r.Resolve("")
	assert.True(t, strings.HasSuffix(res.SetCookie, "; Secure"))
}

func TestResolveIsIdempotent(t *testing.T) {
	r := NewResolver(false)

	first := r.Resolve("")
	second := r.Resolve(CookieName + "=" + first.UserID)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Empty(t, second.SetCookie, "no cookie re-issuance for known identity")
}

func TestResolveParsesCookieHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"single cookie", CookieName + "=abc-123", "abc-123"},
		{"among others", "theme=dark; " + CookieName + "=tok; lang=en", "tok"},
		{"whitespace", "  " + CookieName + " =spaced ", "spaced"},
		{"value with equals", CookieName + "=a=b=c", "a=b=c"},
		{"other cookies only", "theme=dark; lang=en", ""},
		{"empty value mints fresh", CookieName + "=", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(false)
			res := r.Resolve(tt.header)
			if tt.want != "" {
				assert.Equal(t, tt.want, res.UserID)
				assert.Empty(t, res.SetCookie)
			} else {
				assert.NotEmpty(t, res.UserID)
				assert.NotEmpty(t, res.SetCookie)
			}
		})
	}
}

func TestTokenFallbackChain(t *testing.T) {
	t.Run("crypto rand fallback", func(t *testing.T) {
		r := NewResolver(false)
		r.newUUID = func() (uuid.UUID, error) { return uuid.UUID{}, errors.New("entropy exhausted") }

		token := r.newToken()
		assert.Regexp(t, uuidShape, token)
	})

	t.Run("low-entropy last resort", func(t *testing.T) {
		r := NewResolver(false)
		r.newUUID = func() (uuid.UUID, error) { return uuid.UUID{}, errors.New("entropy exhausted") }
		r.randRead = func(b []byte) (int, error) { return 0, errors.New("entropy exhausted") }

		token := r.newToken()
		assert.Regexp(t, uuidShape, token, "last resort must still satisfy UUID shape")
	})
}
