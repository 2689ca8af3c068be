package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskagent configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// DataRoot confines every path a handler reads or writes.
	DataRoot string `yaml:"data_root"`

	// Text/image oracle
	Oracle OracleConfig `yaml:"oracle"`

	// Subprocess execution (uv, npx, git)
	Execution ExecutionConfig `yaml:"execution"`

	// Outbound HTTP
	HTTP HTTPConfig `yaml:"http"`

	// Website scraping
	Scraper ScraperConfig `yaml:"scraper"`

	// SQLite access
	SQL SQLConfig `yaml:"sql"`

	// Data generation bootstrap
	Datagen DatagenConfig `yaml:"datagen"`

	// Markdown formatting
	Formatter FormatterConfig `yaml:"formatter"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// OracleConfig configures the text/image oracle.
type OracleConfig struct {
	Provider       string `yaml:"provider"` // gemini
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	Timeout        string `yaml:"timeout"`
}

// ExecutionConfig configures the subprocess layer.
type ExecutionConfig struct {
	// Allowed binaries; anything else is refused.
	AllowedBinaries []string `yaml:"allowed_binaries"`

	// Default timeout for commands
	DefaultTimeout string `yaml:"default_timeout"`

	// Working directory (defaults to the data root)
	WorkingDirectory string `yaml:"working_directory"`

	// Environment variables passed through from the parent process
	AllowedEnvVars []string `yaml:"allowed_env_vars"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	Timeout      string `yaml:"timeout"`
	UserAgent    string `yaml:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// ScraperConfig configures SCRAPE_WEBSITE.
type ScraperConfig struct {
	// UseBrowser renders pages with a headless Chromium before extraction.
	UseBrowser        bool   `yaml:"use_browser"`
	Headless          bool   `yaml:"headless"`
	ControlURL        string `yaml:"control_url"` // existing DevTools endpoint; empty launches one
	NavigationTimeout string `yaml:"navigation_timeout"`
}

// SQLConfig configures SQLite access.
type SQLConfig struct {
	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver string `yaml:"driver"`

	// AllowWrites disables the read-only guard on literal queries.
	AllowWrites bool `yaml:"allow_writes"`
}

// DatagenConfig configures RUN_DATAGEN.
type DatagenConfig struct {
	ScriptURL string `yaml:"script_url"`
	UserEmail string `yaml:"user_email"`
}

// FormatterConfig configures FORMAT_MARKDOWN.
type FormatterConfig struct {
	PrettierVersion string `yaml:"prettier_version"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "taskagent",
		Version:  "1.0.0",
		DataRoot: "/data",

		Oracle: OracleConfig{
			Provider:       "gemini",
			Model:          "gemini-2.5-flash",
			EmbeddingModel: "gemini-embedding-001",
			Timeout:        "60s",
		},

		Execution: ExecutionConfig{
			AllowedBinaries: []string{"uv", "pip", "python", "python3", "npx", "git"},
			DefaultTimeout:  "300s",
			AllowedEnvVars:  []string{"PATH", "HOME", "LANG", "USER"},
		},

		HTTP: HTTPConfig{
			Timeout:      "30s",
			UserAgent:    "taskagent/1.0",
			MaxBodyBytes: 20 * 1024 * 1024,
		},

		Scraper: ScraperConfig{
			UseBrowser:        false,
			Headless:          true,
			NavigationTimeout: "30s",
		},

		SQL: SQLConfig{
			Driver: "sqlite3",
		},

		Datagen: DatagenConfig{
			ScriptURL: "https://raw.githubusercontent.com/sanand0/tools-in-data-science-public/tds-2025-01/project-1/datagen.py",
		},

		Formatter: FormatterConfig{
			PrettierVersion: "3.4.2",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
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
// This is the only place the process environment is consulted; handlers
// receive the resolved values.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("TASKAGENT_DATA_ROOT"); root != "" {
		c.DataRoot = root
	}
	if email := os.Getenv("USER_EMAIL"); email != "" {
		c.Datagen.UserEmail = email
	}

	// Oracle credential (GEMINI_API_KEY wins over the proxy token)
	if key := os.Getenv("AIPROXY_TOKEN"); key != "" {
		c.Oracle.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
	}

	if driver := os.Getenv("TASKAGENT_DB_DRIVER"); driver != "" {
		c.SQL.Driver = driver
	}
}

// ValidSQLDrivers lists the registered database/sql driver names.
var ValidSQLDrivers = []string{"sqlite3", "sqlite"}

// ValidProviders lists all supported oracle providers.
var ValidProviders = []string{"gemini"}

// Validate validates the configuration.
// A missing oracle key is not an error here; oracle-backed handlers fail
// at invocation instead.
func (c *Config) Validate() error {
	if c.DataRoot == "" || !filepath.IsAbs(c.DataRoot) {
		return fmt.Errorf("data_root must be an absolute path, got %q", c.DataRoot)
	}

	if !contains(ValidSQLDrivers, c.SQL.Driver) {
		return fmt.Errorf("invalid sql driver: %s (valid: %v)", c.SQL.Driver, ValidSQLDrivers)
	}

	if !contains(ValidProviders, c.Oracle.Provider) {
		return fmt.Errorf("invalid oracle provider: %s (valid: %v)", c.Oracle.Provider, ValidProviders)
	}

	for name, raw := range map[string]string{
		"oracle.timeout":             c.Oracle.Timeout,
		"execution.default_timeout":  c.Execution.DefaultTimeout,
		"http.timeout":               c.HTTP.Timeout,
		"scraper.navigation_timeout": c.Scraper.NavigationTimeout,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}

	return nil
}

// HasOracleKey reports whether an oracle credential is configured.
func (c *Config) HasOracleKey() bool {
	return strings.TrimSpace(c.Oracle.APIKey) != ""
}

// WorkDir returns the subprocess working directory.
func (c *Config) WorkDir() string {
	if c.Execution.WorkingDirectory != "" {
		return c.Execution.WorkingDirectory
	}
	return c.DataRoot
}

// GetOracleTimeout returns the oracle timeout as a duration.
func (c *Config) GetOracleTimeout() time.Duration {
	return parseDuration(c.Oracle.Timeout, 60*time.Second)
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDuration(c.Execution.DefaultTimeout, 300*time.Second)
}

// GetHTTPTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	return parseDuration(c.HTTP.Timeout, 30*time.Second)
}

// GetNavigationTimeout returns the browser navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Scraper.NavigationTimeout, 30*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
