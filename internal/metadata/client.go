package metadata

import (
	"regexp"
	"strings"
)

// ScreenInfo describes the client's physical screen.
type ScreenInfo struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	AvailWidth  int `json:"availWidth,omitempty"`
	AvailHeight int `json:"availHeight,omitempty"`
	ColorDepth  int `json:"colorDepth,omitempty"`
}

// ViewportInfo describes the visible viewport.
type ViewportInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Capabilities carries coarse feature flags probed by the embed page.
type Capabilities struct {
	Touch        bool `json:"touch"`
	LocalStorage bool `json:"localStorage"`
	WebGL        bool `json:"webGL"`
	WebAssembly  bool `json:"webAssembly"`
}

// PageTiming carries page-performance timing, when obtainable.
type PageTiming struct {
	PageLoadMs         float64 `json:"pageLoadMs,omitempty"`
	DOMContentLoadedMs float64 `json:"domContentLoadedMs,omitempty"`
	FirstPaintMs       float64 `json:"firstPaintMs,omitempty"`
}

// ClientSnapshot is the client-execution-context metadata posted by the
// widget embed page. The server has no client runtime of its own, so the
// bundle exists only when a snapshot arrives with the lifecycle stream.
type ClientSnapshot struct {
	UserAgent      string        `json:"userAgent,omitempty"`
	Language       string        `json:"language,omitempty"`
	Languages      []string      `json:"languages,omitempty"`
	Platform       string        `json:"platform,omitempty"`
	Timezone       string        `json:"timezone,omitempty"`
	TimezoneOffset int           `json:"timezoneOffset,omitempty"`
	Screen         *ScreenInfo   `json:"screen,omitempty"`
	Viewport       *ViewportInfo `json:"viewport,omitempty"`
	Capabilities   *Capabilities `json:"capabilities,omitempty"`
	Timing         *PageTiming   `json:"timing,omitempty"`
}

// Client collects browser/client metadata from a posted snapshot. A nil
// snapshot yields an empty mapping.
func Client(snap *ClientSnapshot) map[string]any {
	if snap == nil {
		return map[string]any{}
	}

	m := map[string]any{}

	if snap.UserAgent != "" {
		m["userAgent"] = snap.UserAgent
		m["device"] = ClassifyUserAgent(snap.UserAgent).toMap()
	}
	if snap.Language != "" {
		m["language"] = snap.Language
		languages := snap.Languages
		if len(languages) == 0 {
			languages = []string{snap.Language}
		}
		m["languages"] = languages
	}
	if snap.Platform != "" {
		m["platform"] = snap.Platform
	}
	if snap.Timezone != "" {
		m["timezone"] = snap.Timezone
		m["timezoneOffset"] = snap.TimezoneOffset
	}
	if snap.Screen != nil {
		m["screen"] = map[string]any{
			"width":       snap.Screen.Width,
			"height":      snap.Screen.Height,
			"availWidth":  snap.Screen.AvailWidth,
			"availHeight": snap.Screen.AvailHeight,
			"colorDepth":  snap.Screen.ColorDepth,
		}
	}
	if snap.Viewport != nil {
		m["viewport"] = map[string]any{
			"width":  snap.Viewport.Width,
			"height": snap.Viewport.Height,
		}
	}
	if snap.Capabilities != nil {
		m["capabilities"] = map[string]any{
			"touch":        snap.Capabilities.Touch,
			"localStorage": snap.Capabilities.LocalStorage,
			"webGL":        snap.Capabilities.WebGL,
			"webAssembly":  snap.Capabilities.WebAssembly,
		}
	}
	if snap.Timing != nil && snap.Timing.PageLoadMs > 0 {
		m["pageLoadTime"] = snap.Timing.PageLoadMs
		m["performance"] = map[string]any{
			"pageLoadTime":     snap.Timing.PageLoadMs,
			"domContentLoaded": snap.Timing.DOMContentLoadedMs,
			"firstPaint":       snap.Timing.FirstPaintMs,
		}
	}

	return m
}

// Device is a coarse classification derived from a user-agent string.
type Device struct {
	Type           string // "mobile", "tablet", "desktop"
	Brand          string
	Model          string
	OS             string
	OSVersion      string
	Browser        string
	BrowserVersion string
}

func (d Device) toMap() map[string]any {
	m := map[string]any{"type": d.Type}
	if d.Brand != "" {
		m["brand"] = d.Brand
	}
	if d.Model != "" {
		m["model"] = d.Model
	}
	os := d.OS
	if os == "" {
		os = "Unknown"
	}
	m["os"] = os
	if d.OSVersion != "" {
		m["osVersion"] = d.OSVersion
	}
	browser := d.Browser
	if browser == "" {
		browser = "Unknown"
	}
	m["browser"] = browser
	if d.BrowserVersion != "" {
		m["browserVersion"] = d.BrowserVersion
	}
	return m
}

var (
	mobilePattern  = regexp.MustCompile(`mobile|android|iphone|ipod|blackberry|iemobile|opera mini`)
	tabletPattern  = regexp.MustCompile(`tablet|ipad|playbook|silk`)
	iphoneOSVer    = regexp.MustCompile(`iphone os (\d+[_\d]*)`)
	ipadOSVer      = regexp.MustCompile(`os (\d+[_\d]*)`)
	androidVer     = regexp.MustCompile(`android (\d+\.?\d*)`)
	androidDevice  = regexp.MustCompile(`; ([^;)]+)\)`)
	windowsNTVer   = regexp.MustCompile(`windows nt (\d+\.\d+)`)
	macOSVer       = regexp.MustCompile(`mac os x (\d+[._]\d+)`)
	iosVer         = regexp.MustCompile(`(?:iphone|ipad|ipod).*os (\d+[_\d]*)`)
	chromeVer      = regexp.MustCompile(`chrome/(\d+\.\d+)`)
	firefoxVer     = regexp.MustCompile(`firefox/(\d+\.\d+)`)
	safariVer      = regexp.MustCompile(`version/(\d+\.\d+)`)
	edgeVer        = regexp.MustCompile(`edg/(\d+\.\d+)`)
	operaVer       = regexp.MustCompile(`opr/(\d+\.\d+)`)
	underscoreRepl = strings.NewReplacer("_", ".")
)

// ClassifyUserAgent derives a coarse device/OS/browser classification from
// a user-agent string. Device class is matched in order mobile, tablet,
// desktop; OS and browser are each matched independently of device class.
func ClassifyUserAgent(userAgent string) Device {
	ua := strings.ToLower(userAgent)
	d := Device{Type: "desktop"}

	switch {
	case mobilePattern.MatchString(ua):
		d.Type = "mobile"
		switch {
		case strings.Contains(ua, "iphone"):
			d.Brand, d.Model = "Apple", "iPhone"
			if m := iphoneOSVer.FindStringSubmatch(ua); m != nil {
				d.OSVersion = underscoreRepl.Replace(m[1])
			}
		case strings.Contains(ua, "ipod"):
			d.Brand, d.Model = "Apple", "iPod"
		case strings.Contains(ua, "android"):
			d.Brand = "Android"
			if m := androidVer.FindStringSubmatch(ua); m != nil {
				d.OSVersion = m[1]
			}
			if m := androidDevice.FindStringSubmatch(ua); m != nil {
				d.Model = strings.TrimSpace(m[1])
			}
		case strings.Contains(ua, "blackberry"):
			d.Brand = "BlackBerry"
		}
	case tabletPattern.MatchString(ua):
		d.Type = "tablet"
		switch {
		case strings.Contains(ua, "ipad"):
			d.Brand, d.Model = "Apple", "iPad"
			if m := ipadOSVer.FindStringSubmatch(ua); m != nil {
				d.OSVersion = underscoreRepl.Replace(m[1])
			}
		case strings.Contains(ua, "android"):
			d.Brand, d.Model = "Android", "Android Tablet"
		}
	}

	// OS detection, independent of device class. Apple mobile agents
	// contain "like Mac OS X", and Android agents contain "Linux", so the
	// more specific platforms are matched first.
	switch {
	case strings.Contains(ua, "windows"):
		d.OS = "Windows"
		if m := windowsNTVer.FindStringSubmatch(ua); m != nil {
			if m[1] == "10.0" {
				d.OSVersion = "10/11"
			} else {
				d.OSVersion = m[1]
			}
		}
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		d.OS = "iOS"
		if m := iosVer.FindStringSubmatch(ua); m != nil {
			d.OSVersion = underscoreRepl.Replace(m[1])
		}
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		d.OS = "macOS"
		if m := macOSVer.FindStringSubmatch(ua); m != nil {
			d.OSVersion = underscoreRepl.Replace(m[1])
		}
	case strings.Contains(ua, "android"):
		d.OS = "Android"
		if m := androidVer.FindStringSubmatch(ua); m != nil {
			d.OSVersion = m[1]
		}
	case strings.Contains(ua, "linux"):
		d.OS = "Linux"
	}

	// Browser detection. Chrome's token appears in Edge and Opera agents,
	// so those are excluded first.
	switch {
	case strings.Contains(ua, "edg/"):
		d.Browser = "Edge"
		if m := edgeVer.FindStringSubmatch(ua); m != nil {
			d.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "opr/"):
		d.Browser = "Opera"
		if m := operaVer.FindStringSubmatch(ua); m != nil {
			d.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "chrome"):
		d.Browser = "Chrome"
		if m := chromeVer.FindStringSubmatch(ua); m != nil {
			d.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "firefox"):
		d.Browser = "Firefox"
		if m := firefoxVer.FindStringSubmatch(ua); m != nil {
			d.BrowserVersion = m[1]
		}
	case strings.Contains(ua, "safari"):
		d.Browser = "Safari"
		if m := safariVer.FindStringSubmatch(ua); m != nil {
			d.BrowserVersion = m[1]
		}
	}

	return d
}
