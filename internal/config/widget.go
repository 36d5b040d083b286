package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// StarterPrompt is one suggested opening question on the start screen.
type StarterPrompt struct {
	Label  string `yaml:"label" json:"label"`
	Prompt string `yaml:"prompt" json:"prompt"`
	Icon   string `yaml:"icon" json:"icon"`
}

// ThemeAccent tunes the widget accent color per color scheme.
type ThemeAccent struct {
	Light string `yaml:"light" json:"light"`
	Dark  string `yaml:"dark" json:"dark"`
}

// WidgetPreset holds the presentation configuration served to the widget
// embed page.
type WidgetPreset struct {
	Greeting       string          `yaml:"greeting" json:"greeting"`
	Placeholder    string          `yaml:"placeholder" json:"placeholder"`
	StarterPrompts []StarterPrompt `yaml:"starter_prompts" json:"starter_prompts"`
	Accent         ThemeAccent     `yaml:"accent" json:"accent"`
	Radius         string          `yaml:"radius" json:"radius"`
}

// DefaultWidgetPreset returns the built-in presentation defaults.
func DefaultWidgetPreset() *WidgetPreset {
	return &WidgetPreset{
		Greeting:    "How can I help you today?",
		Placeholder: "Type your question",
		StarterPrompts: []StarterPrompt{
			{Label: "What event today?", Prompt: "What event today?", Icon: "circle-question"},
		},
		Accent: ThemeAccent{
			Light: "#0f172a",
			Dark:  "#f1f5f9",
		},
		Radius: "round",
	}
}

// LoadWidgetPreset reads a preset from a YAML file, falling back to the
// defaults when no path is configured. Missing fields keep their defaults.
func LoadWidgetPreset(path string) (*WidgetPreset, error) {
	preset := DefaultWidgetPreset()
	if path == "" {
		return preset, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read widget preset: %w", err)
	}
	if err := yaml.Unmarshal(data, preset); err != nil {
		return nil, fmt.Errorf("failed to parse widget preset: %w", err)
	}
	return preset, nil
}
