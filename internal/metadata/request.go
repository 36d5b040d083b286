package metadata

import (
	"net/http"
	"regexp"
	"strings"
)

// ipHeaders is the precedence list for resolving the forwarded client IP.
// First match wins; loopback values are skipped.
var ipHeaders = []string{
	"Cf-Connecting-Ip",
	"X-Forwarded-For",
	"X-Real-Ip",
	"X-Client-Ip",
	"True-Client-Ip",
}

var forwardedForPattern = regexp.MustCompile(`for=([^;,\s]+)`)

// Request collects metadata from an inbound HTTP request. A nil request
// yields an empty mapping.
func Request(r *http.Request) map[string]any {
	if r == nil {
		return map[string]any{}
	}

	m := map[string]any{}

	for key, header := range map[string]string{
		"userAgent":      "User-Agent",
		"referer":        "Referer",
		"origin":         "Origin",
		"acceptLanguage": "Accept-Language",
		"accept":         "Accept",
	} {
		if v := r.Header.Get(header); v != "" {
			m[key] = v
		}
	}

	if ip, source := ResolveClientIP(r.Header); ip != "" {
		m["ip"] = ip
		m["ipType"] = ipType(ip)
		m["ipSource"] = source
	} else if host := r.Host; strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
		m["ip"] = "localhost"
		m["ipType"] = "localhost"
		m["ipSource"] = "local-development"
	}

	if r.URL != nil {
		m["requestUrl"] = map[string]any{
			"pathname": r.URL.Path,
			"search":   r.URL.RawQuery,
			"hostname": r.URL.Hostname(),
		}
	}

	if country := r.Header.Get("Cf-Ipcountry"); country != "" {
		m["cloudflare"] = map[string]any{
			"country": country,
			"ray":     r.Header.Get("Cf-Ray"),
		}
	}
	if country := r.Header.Get("X-Vercel-Ip-Country"); country != "" {
		m["vercel"] = map[string]any{
			"country": country,
			"region":  r.Header.Get("X-Vercel-Ip-Country-Region"),
		}
	}

	return m
}

// ResolveClientIP walks the proxy-header precedence list and returns the
// first non-loopback address together with the header it came from.
func ResolveClientIP(h http.Header) (ip, source string) {
	for _, header := range ipHeaders {
		value := h.Get(header)
		if value == "" {
			continue
		}
		if header == "X-Forwarded-For" {
			// First entry is the original client, not the nearest proxy.
			for _, candidate := range strings.Split(value, ",") {
				candidate = strings.TrimSpace(candidate)
				if candidate != "" && !isLoopback(candidate) {
					return candidate, strings.ToLower(header)
				}
			}
			continue
		}
		if !isLoopback(value) {
			return value, strings.ToLower(header)
		}
	}

	// Alternative format: X-Forwarded: for=1.2.3.4
	if forwarded := h.Get("X-Forwarded"); forwarded != "" {
		if m := forwardedForPattern.FindStringSubmatch(forwarded); m != nil {
			candidate := strings.Trim(m[1], `"`)
			if !isLoopback(candidate) {
				return candidate, "x-forwarded"
			}
		}
	}

	return "", ""
}

func isLoopback(ip string) bool {
	return ip == "::1" || ip == "127.0.0.1" || ip == "localhost"
}

func ipType(ip string) string {
	if strings.Contains(ip, ":") {
		return "ipv6"
	}
	return "ipv4"
}
