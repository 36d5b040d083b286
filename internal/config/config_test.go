package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWorkflowVersion(t *testing.T) {
	tests := []struct {
		workflowID string
		want       string
	}{
		{"wf_abc_v27", "27"},
		{"wf_abc-27.0.0", "27.0.0"},
		{"wf_abc_v1.0.0-alpha", "1.0.0-alpha"},
		{"wf_abc_27", "27"},
		{"wf_68df519a7d9c8190", "68"}, // coincidental match, why it stays best-effort
		{"workflow", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.workflowID, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractWorkflowVersion(tt.workflowID))
		})
	}
}

func TestResolveAgentVersion(t *testing.T) {
	t.Run("explicit config wins", func(t *testing.T) {
		c := ChatKitConfig{AgentVersion: "custom-2.0", WorkflowID: "wf_x_v3"}
		assert.Equal(t, "custom-2.0", c.ResolveAgentVersion())
	})

	t.Run("workflow heuristic", func(t *testing.T) {
		c := ChatKitConfig{WorkflowID: "wf_x_v3"}
		assert.Equal(t, "opi-mm-wf-3", c.ResolveAgentVersion())
	})

	t.Run("default", func(t *testing.T) {
		c := ChatKitConfig{WorkflowID: "workflow"}
		assert.Equal(t, DefaultAgentVersion, c.ResolveAgentVersion())
	})
}

func TestLangfuseEnabled(t *testing.T) {
	assert.False(t, LangfuseConfig{}.Enabled())
	assert.False(t, LangfuseConfig{PublicKey: "pk"}.Enabled())
	assert.True(t, LangfuseConfig{PublicKey: "pk", SecretKey: "sk"}.Enabled())
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com", cfg.ChatKit.APIBase)
	assert.Equal(t, "https://cloud.langfuse.com", cfg.Langfuse.Host)
	assert.Equal(t, "1.0.0-alpha", cfg.App.Version)
}

func TestLoadWidgetPreset(t *testing.T) {
	t.Run("defaults without path", func(t *testing.T) {
		preset, err := LoadWidgetPreset("")
		require.NoError(t, err)
		assert.Equal(t, "How can I help you today?", preset.Greeting)
		assert.NotEmpty(t, preset.StarterPrompts)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "widget.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"greeting: Welcome to QSNCC\nplaceholder: Ask about the venue\nstarter_prompts:\n  - label: Opening hours\n    prompt: What are the opening hours?\n    icon: circle-question\n"), 0o644))

		preset, err := LoadWidgetPreset(path)
		require.NoError(t, err)
		assert.Equal(t, "Welcome to QSNCC", preset.Greeting)
		assert.Equal(t, "Ask about the venue", preset.Placeholder)
		require.Len(t, preset.StarterPrompts, 1)
		assert.Equal(t, "Opening hours", preset.StarterPrompts[0].Label)
		assert.Equal(t, "round", preset.Radius, "unset fields keep defaults")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWidgetPreset("/nonexistent/widget.yaml")
		assert.Error(t, err)
	})
}
