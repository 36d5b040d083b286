// Package metadata produces the non-authoritative metadata bundles merged
// into each trace: environment, client, and inbound-request. Every producer
// is total — it degrades to a partial or empty mapping rather than failing —
// and the merge re-asserts required fields so no bundle can blank them.
package metadata

import (
	"time"

	"github.com/24ep/chatkit-starter/internal/config"
	"github.com/24ep/chatkit-starter/internal/logging"
)

// Environment collects deployment and build metadata.
func Environment(cfg *config.Config) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}

	nodeEnv := "development"
	if logging.IsProduction() {
		nodeEnv = "production"
	}

	m := map[string]any{
		"nodeEnv":            nodeEnv,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"appVersion":         cfg.App.Version,
		"applicationVersion": cfg.App.Version,
	}

	if cfg.Deploy.Vercel {
		m["deployment"] = map[string]any{
			"platform":      "vercel",
			"env":           cfg.Deploy.VercelEnv,
			"url":           cfg.Deploy.VercelURL,
			"deploymentUrl": cfg.Deploy.DeploymentURL,
		}
	}
	if cfg.App.BuildID != "" {
		m["buildId"] = cfg.App.BuildID
	}
	if cfg.App.EnvironmentTag != "" {
		m["environmentTag"] = cfg.App.EnvironmentTag
	}

	return m
}
