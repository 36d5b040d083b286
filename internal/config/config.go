package config

import (
	"fmt"
	"regexp"

	"github.com/kelseyhightower/envconfig"
)

// DefaultAgentVersion is used when no explicit version is configured and
// none can be extracted from the workflow identifier.
const DefaultAgentVersion = "opi-mm-wf-27.0.0"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	ChatKit   ChatKitConfig
	Langfuse  LangfuseConfig
	Widget    WidgetConfig
	Deploy    DeployConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8000"`
	Host           string   `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// AppConfig identifies this application build.
type AppConfig struct {
	Version        string `envconfig:"APP_VERSION" default:"1.0.0-alpha"`
	BuildID        string `envconfig:"BUILD_ID"`
	EnvironmentTag string `envconfig:"ENVIRONMENT_TAG"`
}

// ChatKitConfig holds upstream chat backend configuration.
type ChatKitConfig struct {
	APIBase      string `envconfig:"CHATKIT_API_BASE" default:"https://api.openai.com"`
	APIKey       string `envconfig:"OPENAI_API_KEY"`
	WorkflowID   string `envconfig:"CHATKIT_WORKFLOW_ID"`
	AgentVersion string `envconfig:"AGENT_VERSION"`
}

// LangfuseConfig holds observability backend credentials.
type LangfuseConfig struct {
	PublicKey string `envconfig:"LANGFUSE_PUBLIC_KEY"`
	SecretKey string `envconfig:"LANGFUSE_SECRET_KEY"`
	Host      string `envconfig:"LANGFUSE_HOST" default:"https://cloud.langfuse.com"`
}

// Enabled reports whether tracing credentials are fully configured.
func (c LangfuseConfig) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// WidgetConfig holds widget presentation configuration.
type WidgetConfig struct {
	PresetPath string `envconfig:"WIDGET_PRESET_PATH"`
}

// DeployConfig describes the deployment platform, when known.
type DeployConfig struct {
	Vercel        bool   `envconfig:"VERCEL"`
	VercelEnv     string `envconfig:"VERCEL_ENV"`
	VercelURL     string `envconfig:"VERCEL_URL"`
	DeploymentURL string `envconfig:"VERCEL_DEPLOYMENT_URL"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		App: AppConfig{
			Version: "1.0.0-alpha",
		},
		ChatKit: ChatKitConfig{
			APIBase: "https://api.openai.com",
		},
		Langfuse: LangfuseConfig{
			Host: "https://cloud.langfuse.com",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Matches version-ish substrings embedded in workflow identifiers, e.g.
// wf_xxx_v27, wf_xxx-27.0.0, wf_xxx_v1.0.0-alpha.
var workflowVersionPattern = regexp.MustCompile(`(?i)[_-]v?(\d+(?:\.\d+)*(?:-[a-z0-9]+)?)`)

// ExtractWorkflowVersion pulls a version-shaped substring out of a workflow
// identifier. Best-effort enrichment only: arbitrary identifiers may
// coincidentally match, so callers must not treat the result as
// correctness-bearing.
func ExtractWorkflowVersion(workflowID string) string {
	if workflowID == "" {
		return ""
	}
	m := workflowVersionPattern.FindStringSubmatch(workflowID)
	if m == nil {
		return ""
	}
	return m[1]
}

// ResolveAgentVersion returns the agent version to attach to traces:
// explicit configuration wins, then the workflow-id heuristic, then the
// built-in default.
func (c ChatKitConfig) ResolveAgentVersion() string {
	if c.AgentVersion != "" {
		return c.AgentVersion
	}
	if v := ExtractWorkflowVersion(c.WorkflowID); v != "" {
		return "opi-mm-wf-" + v
	}
	return DefaultAgentVersion
}
