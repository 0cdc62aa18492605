package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds user configuration for categorization runs.
type Settings struct {
	APIKey            string   `json:"apiKey" yaml:"apiKey"`
	APIEndpoint       string   `json:"apiEndpoint" yaml:"apiEndpoint"`
	Model             string   `json:"model" yaml:"model"`
	Provider          string   `json:"provider" yaml:"provider"`
	CustomCategories  []string `json:"customCategories" yaml:"customCategories"`
	MaxRootCategories int      `json:"maxRootCategories" yaml:"maxRootCategories"`
	IgnoreFolders     []string `json:"ignoreFolders" yaml:"ignoreFolders"`
	BatchSize         int      `json:"batchSize" yaml:"batchSize"`
	Temperature       float64  `json:"temperature" yaml:"temperature"`
	RequestsPerMinute int      `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	Language          string   `json:"language" yaml:"language"`
}

// DefaultSettings returns the default configuration.
func DefaultSettings() Settings {
	return Settings{
		APIEndpoint:       "https://api.openai.com/v1/chat/completions",
		Model:             "gpt-4o-mini",
		Provider:          "openai",
		CustomCategories:  []string{},
		MaxRootCategories: 10,
		IgnoreFolders:     []string{},
		BatchSize:         50,
		Temperature:       0.3,
		Language:          "English",
	}
}

// LoadSettings reads settings from a JSON or YAML file, fills missing
// fields with defaults and applies environment overrides.
// Creates the file with defaults if it doesn't exist.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			settings := DefaultSettings()
			// Non-fatal: defaults are usable even if they can't be written
			_ = SaveSettings(path, &settings)
			settings.ApplyEnv()
			return &settings, nil
		}
		return nil, err
	}

	// Fields the file leaves out keep their defaults.
	settings := DefaultSettings()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &settings)
	} else {
		err = json.Unmarshal(data, &settings)
	}
	if err != nil {
		return nil, err
	}

	settings.applyDefaults()
	settings.ApplyEnv()
	return &settings, nil
}

func (s *Settings) applyDefaults() {
	defaults := DefaultSettings()
	if s.APIEndpoint == "" {
		s.APIEndpoint = defaults.APIEndpoint
	}
	if s.Model == "" {
		s.Model = defaults.Model
	}
	if s.Provider == "" {
		s.Provider = defaults.Provider
	}
	if s.CustomCategories == nil {
		s.CustomCategories = defaults.CustomCategories
	}
	if s.MaxRootCategories < 1 {
		s.MaxRootCategories = defaults.MaxRootCategories
	}
	if s.IgnoreFolders == nil {
		s.IgnoreFolders = defaults.IgnoreFolders
	}
	if s.BatchSize < 1 {
		s.BatchSize = defaults.BatchSize
	}
	if s.Temperature < 0 {
		s.Temperature = defaults.Temperature
	}
	if s.Language == "" {
		s.Language = defaults.Language
	}
}

// ApplyEnv overrides credential and endpoint settings from the environment.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && s.APIKey == "" {
		s.APIKey = v
	}
	if v := os.Getenv("BMSORT_API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := os.Getenv("BMSORT_ENDPOINT"); v != "" {
		s.APIEndpoint = v
	}
	if v := os.Getenv("BMSORT_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("BMSORT_PROVIDER"); v != "" {
		s.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("BMSORT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.RequestsPerMinute = n
		}
	}
}

// SaveSettings writes settings to a JSON or YAML file.
// Creates the directory if it doesn't exist.
func SaveSettings(path string, settings *Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(settings)
	} else {
		data, err = json.MarshalIndent(settings, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultSettingsPath returns the default settings path: ~/.config/bmsort/config.json
func DefaultSettingsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "bmsort", "config.json"), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
