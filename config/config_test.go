package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoloki/microsoft-dataextract/domain"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "dataextract.yaml"), "/var/dataextract", false)
	require.NoError(t, err)

	assert.Equal(t, Strict, cfg.Policy)
	assert.True(t, cfg.Graph.Enabled)
	assert.Equal(t, "all_metadata.xlsx", cfg.Graph.Full)
	assert.Equal(t, "filtered_sccm_data.xlsx", cfg.Inventory.Filtered)
	assert.Equal(t, 1, cfg.Graph.FolderDepth)
	assert.Equal(t, map[string]string{"deployed_date": "2022-01-01"}, cfg.Blockchain.Filters)
	assert.Equal(t, filepath.Join("/var/dataextract", "metadata_fetch.log"), cfg.Path(cfg.Log.File))
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_RequiredFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "dataextract.yaml"), "", true)

	assert.Equal(t, domain.ConfigurationError, domain.KindOf(err))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataextract.yaml")
	settings := `
policy: skip-failed
log:
  level: debug
graph:
  folder-depth: 3
purview:
  enabled: false
blockchain:
  filters: {}
inventory:
  full: /data/inventory.xlsx
`
	require.NoError(t, os.WriteFile(path, []byte(settings), 0660))

	cfg, err := Load(path, "/tmp", false)
	require.NoError(t, err)

	assert.Equal(t, SkipFailed, cfg.Policy)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 3, cfg.Graph.FolderDepth)
	assert.True(t, cfg.Graph.Enabled, "graph should stay enabled")
	assert.Equal(t, "https://graph.microsoft.com/v1.0/", cfg.Graph.Endpoint)
	assert.False(t, cfg.Purview.Enabled)
	assert.Empty(t, cfg.Blockchain.Filters)
	assert.Equal(t, "/data/inventory.xlsx", cfg.Path(cfg.Inventory.Full))
	assert.Equal(t, "filtered_sccm_data.xlsx", cfg.Inventory.Filtered)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"policy":          func(c *Config) { c.Policy = "retry" },
		"log level":       func(c *Config) { c.Log.Level = "verbose" },
		"blank workbook":  func(c *Config) { c.Graph.Full = " " },
		"shared workbook": func(c *Config) { c.Purview.Filtered = "ALL_METADATA.xlsx" },
		"folder depth":    func(c *Config) { c.Graph.FolderDepth = -1 },
		"page size":       func(c *Config) { c.Purview.PageSize = 5000 },
		"archive":         func(c *Config) { c.Archive.Enabled = true },
	}

	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default("")
			f(cfg)

			assert.Equal(t, domain.ConfigurationError, domain.KindOf(cfg.Validate()))
		})
	}

	assert.NoError(t, Default("").Validate())
}

func TestValidate_DisabledSourceIsNotChecked(t *testing.T) {
	cfg := Default("")
	cfg.Purview.Enabled = false
	cfg.Purview.Full = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoadCredentials_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"TENANT_ID":"tenant","CLIENT_ID":"client","port":1433,"empty":null}`), 0600))

	c, err := LoadCredentials(path)
	require.NoError(t, err)

	assert.Equal(t, "tenant", c.Get("TENANT_ID"))
	assert.Equal(t, "1433", c.Get("port"))
	assert.Equal(t, []string{"CLIENT_ID", "TENANT_ID", "port"}, c.Keys())
}

func TestLoadCredentials_KeyValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.env")
	require.NoError(t, os.WriteFile(path, []byte("# inventory\nserver=sccm.local\nPASSWORD=\"s3cr=t\"\n"), 0600))

	c, err := LoadCredentials(path)
	require.NoError(t, err)

	assert.Equal(t, "sccm.local", c.Get("server"))
	assert.Equal(t, "s3cr=t", c.Get("PASSWORD"))
}

func TestLoadCredentials_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"TENANT_ID":{"nested":true}}`), 0600))

	_, err := LoadCredentials(path)

	assert.Equal(t, domain.ConfigurationError, domain.KindOf(err))
}

func TestCredentials_EnvironmentFallback(t *testing.T) {
	t.Setenv("COSMOS_DB_KEY", "from-env")

	c, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.Get("COSMOS_DB_KEY"))
	assert.Empty(t, c.Keys())
}

func TestCredentials_Require(t *testing.T) {
	t.Setenv("CLIENT_SECRET", "")

	c := NewCredentials(map[string]string{"TENANT_ID": "tenant", "CLIENT_ID": " "})

	err := c.Require("graph", "TENANT_ID", "CLIENT_ID", "CLIENT_SECRET")
	require.Error(t, err)

	assert.Equal(t, domain.ConfigurationError, domain.KindOf(err))
	assert.Contains(t, err.Error(), "CLIENT_ID, CLIENT_SECRET")
	assert.NoError(t, c.Require("graph", "TENANT_ID"))
}
