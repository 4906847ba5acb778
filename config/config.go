// Package config loads the YAML settings file and the source credentials.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Failure policies.
const (
	Strict     = "strict"
	SkipFailed = "skip-failed"
)

// Source names, in processing order.
const (
	Graph      = "graph"
	Purview    = "purview"
	Blockchain = "blockchain"
	Inventory  = "inventory"
)

// Config holds the settings for a run. Relative file names are resolved against Workdir.
type Config struct {
	Workdir     string `yaml:"workdir"`
	Credentials string `yaml:"credentials"`
	Policy      string `yaml:"policy"`
	Log         Log    `yaml:"log"`

	Graph      GraphConfig      `yaml:"graph"`
	Purview    PurviewConfig    `yaml:"purview"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Inventory  InventoryConfig  `yaml:"inventory"`

	Google  Google  `yaml:"google"`
	Archive Archive `yaml:"archive"`
}

type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Output is the per-source enable flag and workbook file names.
type Output struct {
	Enabled  bool   `yaml:"enabled"`
	Full     string `yaml:"full"`
	Filtered string `yaml:"filtered"`
}

type GraphConfig struct {
	Output      `yaml:",inline"`
	Endpoint    string  `yaml:"endpoint"`
	Authority   string  `yaml:"authority"`
	FolderDepth int     `yaml:"folder-depth"`
	RateLimit   float64 `yaml:"rate-limit"`
}

type PurviewConfig struct {
	Output       `yaml:",inline"`
	Endpoint     string `yaml:"endpoint"`
	Keywords     string `yaml:"keywords"`
	PageSize     int    `yaml:"page-size"`
	MaxAssets    int    `yaml:"max-assets"`
	LineageDepth int    `yaml:"lineage-depth"`
}

type BlockchainConfig struct {
	Output  `yaml:",inline"`
	Filters map[string]string `yaml:"filters"`
}

type InventoryConfig struct {
	Output `yaml:",inline"`
}

// Google is the spreadsheet mirror used by the publish and pull commands.
type Google struct {
	URL         string `yaml:"url"`
	Credentials string `yaml:"credentials"`
	Tokens      string `yaml:"tokens"`
}

// Archive is the optional Azure Blob Storage upload of written workbooks.
type Archive struct {
	Enabled   bool   `yaml:"enabled"`
	Account   string `yaml:"account"`
	Container string `yaml:"container"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
}

// Default returns the settings used when there is no settings file.
func Default(workdir string) *Config {
	return &Config{
		Workdir:     workdir,
		Credentials: "credentials.json",
		Policy:      Strict,
		Log: Log{
			File:  "metadata_fetch.log",
			Level: "info",
		},

		Graph: GraphConfig{
			Output:      Output{Enabled: true, Full: "all_metadata.xlsx", Filtered: "filtered_metadata.xlsx"},
			Endpoint:    "https://graph.microsoft.com/v1.0/",
			Authority:   "https://login.microsoftonline.com/",
			FolderDepth: 1,
			RateLimit:   10,
		},

		Purview: PurviewConfig{
			Output:       Output{Enabled: true, Full: "purview_data.xlsx", Filtered: "filtered_purview_data.xlsx"},
			Keywords:     "*",
			PageSize:     100,
			MaxAssets:    10000,
			LineageDepth: 3,
		},

		Blockchain: BlockchainConfig{
			Output: Output{Enabled: true, Full: "blockchain_metadata.xlsx", Filtered: "filtered_blockchain_metadata.xlsx"},
		},

		Inventory: InventoryConfig{
			Output: Output{Enabled: true, Full: "sccm_data.xlsx", Filtered: "filtered_sccm_data.xlsx"},
		},

		Google: Google{
			Credentials: filepath.Join(".google", "credentials.json"),
			Tokens:      ".google",
		},

		Archive: Archive{
			Prefix: "metadata",
		},
	}
}

// Load reads the YAML settings file over the defaults. A missing file is not an error
// unless required is set.
func Load(path string, workdir string, required bool) (*Config, error) {
	cfg := Default(workdir)

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, domain.ErrConfiguration("invalid settings file '%s' (%w)", path, err)
			}

		case errors.Is(err, os.ErrNotExist) && !required:

		default:
			return nil, domain.ErrConfiguration("unable to read settings file '%s' (%w)", path, err)
		}
	}

	if cfg.Blockchain.Filters == nil {
		cfg.Blockchain.Filters = map[string]string{
			"deployed_date": "2022-01-01",
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings are internally consistent.
func (c *Config) Validate() error {
	switch c.Policy {
	case Strict, SkipFailed:
	default:
		return domain.ErrConfiguration("invalid failure policy '%s' (expected '%s' or '%s')", c.Policy, Strict, SkipFailed)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return domain.ErrConfiguration("invalid log level '%s'", c.Log.Level)
	}

	files := map[string]string{}
	for _, name := range []string{Graph, Purview, Blockchain, Inventory} {
		output := c.Output(name)
		if !output.Enabled {
			continue
		}

		if strings.TrimSpace(output.Full) == "" || strings.TrimSpace(output.Filtered) == "" {
			return domain.ErrConfiguration("%s: full and filtered workbook names are required", name)
		}

		for _, f := range []string{output.Full, output.Filtered} {
			k := filepath.Clean(strings.ToLower(f))
			if other, ok := files[k]; ok {
				return domain.ErrConfiguration("%s: workbook '%s' is already used by %s", name, f, other)
			}

			files[k] = name
		}
	}

	if c.Graph.FolderDepth < 0 {
		return domain.ErrConfiguration("graph: invalid folder-depth %d", c.Graph.FolderDepth)
	}

	if c.Graph.RateLimit < 0 {
		return domain.ErrConfiguration("graph: invalid rate-limit %v", c.Graph.RateLimit)
	}

	if c.Purview.PageSize < 1 || c.Purview.PageSize > 1000 {
		return domain.ErrConfiguration("purview: page-size must be between 1 and 1000, got %d", c.Purview.PageSize)
	}

	if c.Purview.LineageDepth < 1 {
		return domain.ErrConfiguration("purview: invalid lineage-depth %d", c.Purview.LineageDepth)
	}

	if c.Archive.Enabled && (c.Archive.Account == "" || c.Archive.Container == "") {
		return domain.ErrConfiguration("archive: account and container are required")
	}

	return nil
}

// Output returns the output settings for the named source.
func (c *Config) Output(source string) Output {
	switch source {
	case Graph:
		return c.Graph.Output
	case Purview:
		return c.Purview.Output
	case Blockchain:
		return c.Blockchain.Output
	case Inventory:
		return c.Inventory.Output
	default:
		return Output{}
	}
}

// Path resolves a file name against the working directory.
func (c *Config) Path(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}

	return filepath.Join(c.Workdir, file)
}

// SlogLevel maps the log level to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
