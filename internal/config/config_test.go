package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TASKAGENT_DATA_ROOT", "USER_EMAIL", "AIPROXY_TOKEN", "GEMINI_API_KEY", "TASKAGENT_DB_DRIVER"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "/data", cfg.DataRoot)
	assert.Equal(t, "sqlite3", cfg.SQL.Driver)
	assert.False(t, cfg.SQL.AllowWrites)
	assert.Equal(t, "3.4.2", cfg.Formatter.PrettierVersion)
	assert.Contains(t, cfg.Execution.AllowedBinaries, "git")
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "taskagent.yaml")
	content := `
data_root: /srv/data
sql:
  driver: sqlite
  allow_writes: true
scraper:
  use_browser: true
logging:
  level: debug
  categories:
    oracle: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", cfg.DataRoot)
	assert.Equal(t, "sqlite", cfg.SQL.Driver)
	assert.True(t, cfg.SQL.AllowWrites)
	assert.True(t, cfg.Scraper.UseBrowser)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, map[string]bool{"oracle": false}, cfg.Logging.Categories)
	// Untouched sections keep defaults.
	assert.Equal(t, "30s", cfg.HTTP.Timeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_root: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("data root and user email", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TASKAGENT_DATA_ROOT", "/tmp/data")
		t.Setenv("USER_EMAIL", "someone@example.com")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/data", cfg.DataRoot)
		assert.Equal(t, "someone@example.com", cfg.Datagen.UserEmail)
	})

	t.Run("AIPROXY_TOKEN sets oracle key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AIPROXY_TOKEN", "proxy-token")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "proxy-token", cfg.Oracle.APIKey)
		assert.True(t, cfg.HasOracleKey())
	})

	t.Run("Precedence: GEMINI_API_KEY overrides AIPROXY_TOKEN", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AIPROXY_TOKEN", "proxy-token")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-key", cfg.Oracle.APIKey)
	})

	t.Run("db driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TASKAGENT_DB_DRIVER", "sqlite")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "sqlite", cfg.SQL.Driver)
	})

	t.Run("empty env leaves config alone", func(t *testing.T) {
		clearEnv(t)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultConfig(), cfg)
		assert.False(t, cfg.HasOracleKey())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"relative data root", func(c *Config) { c.DataRoot = "data" }, "data_root"},
		{"empty data root", func(c *Config) { c.DataRoot = "" }, "data_root"},
		{"unknown driver", func(c *Config) { c.SQL.Driver = "duckdb" }, "invalid sql driver"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "zai" }, "invalid oracle provider"},
		{"bad timeout", func(c *Config) { c.HTTP.Timeout = "soon" }, "http.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	assert.Equal(t, 300*time.Second, cfg.GetExecutionTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetOracleTimeout())

	cfg.HTTP.Timeout = "garbage"
	cfg.Scraper.NavigationTimeout = ""
	assert.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetNavigationTimeout())
}

func TestWorkDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "/data", cfg.WorkDir())

	cfg.Execution.WorkingDirectory = "/opt/work"
	assert.Equal(t, "/opt/work", cfg.WorkDir())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "taskagent.yaml")
	cfg := DefaultConfig()
	cfg.DataRoot = "/srv/data"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", loaded.DataRoot)
}
