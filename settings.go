package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// Settings represents user-configurable settings stored in ~/.bertlens/settings.json
type Settings struct {
	// Model is the default ModelConfig name
	Model string `json:"model"`
	// Engine is the default inference engine (onnx, bedrock, hash)
	Engine string         `json:"engine"`
	Search SearchSettings `json:"search"`
	Theme  ThemeSettings  `json:"theme"`
}

// SearchSettings configures the keyword search
type SearchSettings struct {
	// Document is the text file searched by default
	Document string `json:"document"`
	// Synonyms maps a query word to extra words counted as hits
	Synonyms map[string][]string `json:"synonyms"`
	// MinScore drops results at or below this fraction of matched query words
	MinScore float64 `json:"minScore"`
	// Limit caps the number of results
	Limit int `json:"limit"`
}

// ThemeSettings configures the UI appearance
type ThemeSettings struct {
	// Name is the theme preset name
	Name string `json:"name"`
}

// ThemePreset defines colors for a complete theme
type ThemePreset struct {
	Prompt    string
	Success   string
	Error     string
	Warning   string
	Info      string
	Highlight string
}

// DefaultSettings returns the default settings
func DefaultSettings() *Settings {
	return &Settings{
		Model:  "rubert-tiny2",
		Engine: string(EngineONNX),
		Search: SearchSettings{
			Document: "android_best_practice.txt",
			Synonyms: map[string][]string{
				"mvp":         {"model", "view", "presenter", "паттерн", "архитектура"},
				"mvvm":        {"model", "view", "viewmodel", "паттерн", "архитектура"},
				"архитектура": {"паттерн", "шаблон", "структура"},
				"особенности": {"преимущества", "характеристики", "возможности"},
			},
			MinScore: 0.3,
			Limit:    5,
		},
		Theme: ThemeSettings{
			Name: "default",
		},
	}
}

// SettingsPath returns the path to the settings file
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bertlens", "settings.json"), nil
}

// LoadSettings loads settings from ~/.bertlens/settings.json
// Returns default settings if the file doesn't exist
func LoadSettings() (*Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return DefaultSettings(), nil //nolint:nilerr // intentional: return defaults when path unavailable
	}
	return loadSettingsFrom(path)
}

func loadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}

	// Parse JSON, keeping defaults for missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return settings, err
	}

	return settings, nil
}

// SaveSettings saves settings to ~/.bertlens/settings.json
func SaveSettings(settings *Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	return saveSettingsTo(settings, path)
}

func saveSettingsTo(settings *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

var colorCodes = map[string]string{
	"red":     "\033[91m",
	"green":   "\033[92m",
	"yellow":  "\033[93m",
	"blue":    "\033[94m",
	"magenta": "\033[95m",
	"cyan":    "\033[96m",
	"white":   "\033[97m",
	"reset":   "\033[0m",

	"matrix_green":  "\033[38;5;46m",
	"matrix_dim":    "\033[38;5;22m",
	"nord_blue":     "\033[38;5;67m",
	"nord_cyan":     "\033[38;5;110m",
	"nord_green":    "\033[38;5;108m",
	"nord_red":      "\033[38;5;174m",
	"nord_yellow":   "\033[38;5;222m",
	"gruvbox_green": "\033[38;5;142m",
	"gruvbox_red":   "\033[38;5;167m",
	"gruvbox_amber": "\033[38;5;214m",
	"gruvbox_aqua":  "\033[38;5;108m",
}

// ThemePresets contains all available theme presets
var ThemePresets = map[string]ThemePreset{
	"default": {
		Prompt:    "blue",
		Success:   "green",
		Error:     "red",
		Warning:   "yellow",
		Info:      "cyan",
		Highlight: "magenta",
	},
	"matrix": {
		Prompt:    "matrix_green",
		Success:   "matrix_green",
		Error:     "matrix_dim",
		Warning:   "matrix_green",
		Info:      "matrix_green",
		Highlight: "matrix_green",
	},
	"gruvbox": {
		Prompt:    "gruvbox_amber",
		Success:   "gruvbox_green",
		Error:     "gruvbox_red",
		Warning:   "gruvbox_amber",
		Info:      "gruvbox_aqua",
		Highlight: "gruvbox_amber",
	},
	"nord": {
		Prompt:    "nord_blue",
		Success:   "nord_green",
		Error:     "nord_red",
		Warning:   "nord_yellow",
		Info:      "nord_cyan",
		Highlight: "nord_yellow",
	},
}

// AvailableThemes returns the preset names in sorted order
func AvailableThemes() []string {
	names := make([]string, 0, len(ThemePresets))
	for name := range ThemePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Theme provides color formatting based on settings
type Theme struct {
	preset ThemePreset
}

// NewTheme creates a theme from settings
func NewTheme(settings *ThemeSettings) *Theme {
	preset, ok := ThemePresets[settings.Name]
	if !ok {
		preset = ThemePresets["default"]
	}
	return &Theme{preset: preset}
}

func (t *Theme) Prompt(text string) string    { return t.colorize(t.preset.Prompt, text) }
func (t *Theme) Success(text string) string   { return t.colorize(t.preset.Success, text) }
func (t *Theme) Error(text string) string     { return t.colorize(t.preset.Error, text) }
func (t *Theme) Warning(text string) string   { return t.colorize(t.preset.Warning, text) }
func (t *Theme) Info(text string) string      { return t.colorize(t.preset.Info, text) }
func (t *Theme) Highlight(text string) string { return t.colorize(t.preset.Highlight, text) }

// Dim formats text with dim/faint styling
func (t *Theme) Dim(text string) string {
	return "\033[2m" + text + colorCodes["reset"]
}

func (t *Theme) colorize(color, text string) string {
	return getColorCode(color) + text + colorCodes["reset"]
}

func getColorCode(color string) string {
	if code, ok := colorCodes[color]; ok {
		return code
	}
	return colorCodes["white"]
}
