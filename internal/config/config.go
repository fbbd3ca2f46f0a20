package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all quadforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Web search configuration
	Search SearchConfig `yaml:"search"`

	// Headless browser configuration
	Browser BrowserConfig `yaml:"browser"`

	// Parts store configuration
	Arsenal ArsenalConfig `yaml:"arsenal"`

	// CAD generation configuration
	CAD CADConfig `yaml:"cad"`

	// Design pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Gemini client.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	VisionModel     string `yaml:"vision_model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider"` // genai or ollama
	Model          string `yaml:"model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	Dims           int    `yaml:"dims"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	Backend     string   `yaml:"backend"` // duckduckgo
	ResultLimit int      `yaml:"result_limit"`
	Timeout     string   `yaml:"timeout"`
	Blocklist   []string `yaml:"blocklist"`
}

// BrowserConfig configures the scraping browser.
type BrowserConfig struct {
	Headless          bool   `yaml:"headless"`
	BinaryPath        string `yaml:"binary_path"`
	ViewportWidth     int    `yaml:"viewport_width"`
	ViewportHeight    int    `yaml:"viewport_height"`
	NavigationTimeout string `yaml:"navigation_timeout"`
}

// ArsenalConfig configures the parts store.
type ArsenalConfig struct {
	DatabasePath string `yaml:"database_path"`
	SeedLimit    int    `yaml:"seed_limit"` // parts per category during seeding
}

// CADConfig configures OpenSCAD generation and rendering.
type CADConfig struct {
	OpenSCADBinary string `yaml:"openscad_binary"`
	DotBinary      string `yaml:"dot_binary"`
	RenderTimeout  string `yaml:"render_timeout"`
	OutputDir      string `yaml:"output_dir"`
}

// PipelineConfig configures the design orchestration loops.
type PipelineConfig struct {
	MaxValidationAttempts  int     `yaml:"max_validation_attempts"`
	MaxOptimizerIterations int     `yaml:"max_optimizer_iterations"`
	MinTWR                 float64 `yaml:"min_twr"` // optimizer engages below this
	MaxGenerations         int     `yaml:"max_generations"`
	DefaultBudget          float64 `yaml:"default_budget"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "quadforge",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:           "gemini-2.5-flash",
			VisionModel:     "gemini-2.5-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			Timeout:         "120s",
			MaxOutputTokens: 8192,
		},

		Embedding: EmbeddingConfig{
			Enabled:        true,
			Provider:       "genai",
			Model:          "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			Dims:           768,
		},

		Search: SearchConfig{
			Backend:     "duckduckgo",
			ResultLimit: 3,
			Timeout:     "20s",
			Blocklist: []string{
				"reddit", "facebook", "youtube", "twitter",
				"instagram", "forum", "pinterest",
			},
		},

		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: "30s",
		},

		Arsenal: ArsenalConfig{
			DatabasePath: "data/arsenal.db",
			SeedLimit:    5,
		},

		CAD: CADConfig{
			OpenSCADBinary: "openscad",
			DotBinary:      "dot",
			RenderTimeout:  "30s",
			OutputDir:      "designs",
		},

		Pipeline: PipelineConfig{
			MaxValidationAttempts:  5,
			MaxOptimizerIterations: 3,
			MinTWR:                 1.4,
			MaxGenerations:         5,
			DefaultBudget:          400.0,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "quadforge.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("FORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("FORGE_LLM_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("FORGE_DB"); path != "" {
		c.Arsenal.DatabasePath = path
	}
	if bin := os.Getenv("FORGE_OPENSCAD"); bin != "" {
		c.CAD.OpenSCADBinary = bin
	}
	if bin := os.Getenv("FORGE_BROWSER_BIN"); bin != "" {
		c.Browser.BinaryPath = bin
	}
	if dir := os.Getenv("FORGE_OUTPUT_DIR"); dir != "" {
		c.CAD.OutputDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSearchTimeout returns the search timeout as a duration.
func (c *Config) GetSearchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetNavigationTimeout returns the browser navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRenderTimeout returns the OpenSCAD render timeout as a duration.
func (c *Config) GetRenderTimeout() time.Duration {
	d, err := time.ParseDuration(c.CAD.RenderTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("Gemini API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.Pipeline.MaxValidationAttempts < 1 {
		return fmt.Errorf("pipeline.max_validation_attempts must be >= 1, got %d", c.Pipeline.MaxValidationAttempts)
	}
	if c.Pipeline.MaxOptimizerIterations < 0 {
		return fmt.Errorf("pipeline.max_optimizer_iterations must be >= 0, got %d", c.Pipeline.MaxOptimizerIterations)
	}
	if c.Pipeline.MinTWR <= 1.0 {
		return fmt.Errorf("pipeline.min_twr must be > 1.0, got %.2f", c.Pipeline.MinTWR)
	}
	if c.Search.ResultLimit < 1 {
		return fmt.Errorf("search.result_limit must be >= 1, got %d", c.Search.ResultLimit)
	}
	return nil
}

// ============================================================================
// User Config (.forge/config.json)
// ============================================================================

// UserConfig holds user-specific settings from .forge/config.json.
// The logging section of the same file is read directly by internal/logging.
type UserConfig struct {
	// Gemini API key (overrides GEMINI_API_KEY when set)
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`

	// Optional model override
	Model string `json:"model,omitempty"`

	// UI settings
	Theme string `json:"theme,omitempty"`
}

// DefaultUserConfigPath returns the default path to .forge/config.json.
func DefaultUserConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".forge/config.json"
	}
	return filepath.Join(cwd, ".forge", "config.json")
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .forge directory, falling back to the nearest go.mod, then to the
// working directory itself.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".forge")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// LoadUserConfig loads configuration from .forge/config.json.
func LoadUserConfig(path string) (*UserConfig, error) {
	cfg := &UserConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return empty config if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read user config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to .forge/config.json.
func (c *UserConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}

	return nil
}

// ActiveAPIKey returns the key to use for Gemini calls.
// Priority: user config > environment.
func (c *UserConfig) ActiveAPIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}
