// Package identity resolves a durable anonymous identity for each caller.
//
// The identity is a client-held cookie token, minted once and echoed back on
// every session-mint call. Resolution never fails: identifier generation
// falls back through progressively weaker random sources, always producing a
// UUID-shaped token.
package identity

import (
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// CookieName is the fixed name of the durable identity cookie.
const CookieName = "chatkit_session_id"

// CookieMaxAge is the cookie lifetime in seconds (30 days).
const CookieMaxAge = 60 * 60 * 24 * 30

// Resolution is the outcome of resolving a caller's identity.
type Resolution struct {
	// UserID is the stable anonymous identity token.
	UserID string
	// SetCookie is a serialized Set-Cookie directive, empty when the
	// inbound request already carried a token.
	SetCookie string
}

// Resolver resolves identities from cookie headers.
type Resolver struct {
	production bool

	// randRead is swappable in tests to exercise the fallback chain.
	randRead func(b []byte) (int, error)
	newUUID  func() (uuid.UUID, error)
}

// NewResolver creates a resolver. In production the issued cookie carries
// the Secure attribute.
func NewResolver(production bool) *Resolver {
	return &Resolver{
		production: production,
		randRead:   rand.Read,
		newUUID:    uuid.NewRandom,
	}
}

// Resolve returns the identity for the given inbound Cookie header. An
// existing non-empty token is returned unchanged with no cookie directive;
// otherwise a fresh token is minted along with its Set-Cookie string.
func (r *Resolver) Resolve(cookieHeader string) Resolution {
	if existing := cookieValue(cookieHeader, CookieName); existing != "" {
		return Resolution{UserID: existing}
	}

	token := r.newToken()
	return Resolution{
		UserID:    token,
		SetCookie: r.serializeCookie(token),
	}
}

// newToken mints a random 128-bit identifier shaped as a v4 UUID. Random
// sources are tried strongest-first; the last-resort generator is
// low-entropy but still UUID-shaped with version/variant bits set.
func (r *Resolver) newToken() string {
	if id, err := r.newUUID(); err == nil {
		return id.String()
	}

	var b [16]byte
	if _, err := r.randRead(b[:]); err == nil {
		return formatUUID(b)
	}

	// Last resort: math/rand. Acceptable only because the token is an
	// anonymous correlation key, not a credential.
	var weak [16]byte
	hi, lo := mathrand.Uint64(), mathrand.Uint64()
	for i := 0; i < 8; i++ {
		weak[i] = byte(hi >> (8 * i))
		weak[8+i] = byte(lo >> (8 * i))
	}
	return formatUUID(weak)
}

// formatUUID stamps version 4 and variant 10 bits and renders the
// canonical 8-4-4-4-12 form.
func formatUUID(b [16]byte) string {
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func (r *Resolver) serializeCookie(value string) string {
	attributes := []string{
		fmt.Sprintf("%s=%s", CookieName, url.QueryEscape(value)),
		"Path=/",
		fmt.Sprintf("Max-Age=%d", CookieMaxAge),
		"HttpOnly",
		"SameSite=Lax",
	}
	if r.production {
		attributes = append(attributes, "Secure")
	}
	return strings.Join(attributes, "; ")
}

// cookieValue extracts a named cookie from a raw Cookie header.
func cookieValue(cookieHeader, name string) string {
	if cookieHeader == "" {
		return ""
	}
	for _, cookie := range strings.Split(cookieHeader, ";") {
		rawName, rest, ok := strings.Cut(cookie, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(rawName) == name {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
