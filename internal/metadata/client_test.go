package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Device
	}{
		{
			name: "iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			want: Device{Type: "mobile", Brand: "Apple", Model: "iPhone", OS: "iOS", OSVersion: "17.2", Browser: "Safari", BrowserVersion: "17.2"},
		},
		{
			name: "android phone chrome",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			want: Device{Type: "mobile", Brand: "Android", Model: "pixel 8", OS: "Android", OSVersion: "14", Browser: "Chrome", BrowserVersion: "120.0"},
		},
		{
			name: "ipad",
			ua:   "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/604.1",
			want: Device{Type: "tablet", Brand: "Apple", Model: "iPad", OS: "iOS", OSVersion: "16.6", Browser: "Safari", BrowserVersion: "16.6"},
		},
		{
			name: "windows chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			want: Device{Type: "desktop", OS: "Windows", OSVersion: "10/11", Browser: "Chrome", BrowserVersion: "121.0"},
		},
		{
			name: "macos safari",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			want: Device{Type: "desktop", OS: "macOS", OSVersion: "10.15", Browser: "Safari", BrowserVersion: "17.1"},
		},
		{
			name: "windows edge not chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			want: Device{Type: "desktop", OS: "Windows", OSVersion: "10/11", Browser: "Edge", BrowserVersion: "120.0"},
		},
		{
			name: "linux firefox",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0",
			want: Device{Type: "desktop", OS: "Linux", Browser: "Firefox", BrowserVersion: "122.0"},
		},
		{
			name: "unknown",
			ua:   "curl/8.4.0",
			want: Device{Type: "desktop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyUserAgent(tt.ua))
		})
	}
}

func TestClientNilSnapshot(t *testing.T) {
	assert.Empty(t, Client(nil))
}

func TestClientSnapshot(t *testing.T) {
	m := Client(&ClientSnapshot{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/121.0.0.0 Safari/537.36",
		Language:  "en-US",
		Viewport:  &ViewportInfo{Width: 1280, Height: 720},
		Capabilities: &Capabilities{
			Touch:       false,
			WebAssembly: true,
		},
	})

	assert.Equal(t, "en-US", m["language"])
	assert.Equal(t, []string{"en-US"}, m["languages"], "languages defaults to [language]")
	assert.Contains(t, m, "device")
	assert.Contains(t, m, "viewport")
	assert.NotContains(t, m, "screen")
	assert.NotContains(t, m, "pageLoadTime")
}
