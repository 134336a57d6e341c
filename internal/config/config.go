package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Data    Data    `yaml:"data"`
	Source  Source  `yaml:"source"`
	Geocode Geocode `yaml:"geocode"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Data struct {
	Dir string `yaml:"dir"`
}

// Source configures the open-data export API and the fixed dataset
// descriptors it serves.
type Source struct {
	BaseURL             string   `yaml:"base_url"`
	MaxPolls            int      `yaml:"max_polls"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	Datasets            Datasets `yaml:"datasets"`
}

type Datasets struct {
	Properties string         `yaml:"properties"`
	AggPrices  string         `yaml:"agg_prices"`
	Prices     []PriceDataset `yaml:"prices"`
}

// PriceDataset maps a resale-price dataset ID to the year range it covers.
// EndYear 0 means open-ended (the current era).
type PriceDataset struct {
	ID        string `yaml:"id"`
	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`
}

type Geocode struct {
	BaseURL     string `yaml:"base_url"`
	TokenEnv    string `yaml:"token_env"`
	MaxAttempts int    `yaml:"max_attempts"`
	ThrottleMs  int    `yaml:"throttle_ms"`
}

type Server struct {
	Port      int    `yaml:"port"`
	ClientDir string `yaml:"client_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for hdbmap.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "hdbmap")
}

// DataDir returns the XDG data directory for hdbmap.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "hdbmap")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/hdbmap/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'hdbmap init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Source: Source{
			BaseURL:             "https://api-open.data.gov.sg/v1/public/api/datasets",
			MaxPolls:            5,
			PollIntervalSeconds: 3,
		},
		Geocode: Geocode{
			BaseURL:     "https://www.onemap.gov.sg/api/common/elastic/search",
			TokenEnv:    "ONEMAP_TOKEN",
			MaxAttempts: 10,
			ThrottleMs:  10,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Data.Dir != "" {
		return c.Data.Dir
	}
	return DataDir()
}

// PriceDatasetForYear returns the resale-price dataset covering the given
// year. The second return is false when no configured dataset covers it.
func (c *Config) PriceDatasetForYear(year int) (string, bool) {
	for _, d := range c.Source.Datasets.Prices {
		if year >= d.StartYear && (d.EndYear == 0 || year <= d.EndYear) {
			return d.ID, true
		}
	}
	return "", false
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
