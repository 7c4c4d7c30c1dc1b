package carcatalog

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/carcatalog/carquery"
	"github.com/hazyhaar/carcatalog/enrich"
)

// MemoryDB as DBPath keeps the enrichment cache in process only.
const MemoryDB = ":memory:"

// Config holds all carcatalog configuration.
type Config struct {
	Addr        string `yaml:"addr"`
	DBPath      string `yaml:"db_path"`
	DatasetPath string `yaml:"dataset_path"` // empty: embedded dataset
	StorageKey  string `yaml:"storage_key"`

	// ProxyURL points at a carcatalog proxy in another process. Empty
	// means the proxy runs in process and its route is served here.
	ProxyURL string `yaml:"proxy_url"`

	Upstream carquery.UpstreamConfig `yaml:"upstream"`

	// MetricsRetentionDays bounds how long fetch metrics are kept in the
	// cache database. Metrics are not recorded with MemoryDB.
	MetricsRetentionDays int `yaml:"metrics_retention_days"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "carcatalog.db"
	}
	if c.StorageKey == "" {
		c.StorageKey = enrich.StorageKey
	}
	if c.MetricsRetentionDays <= 0 {
		c.MetricsRetentionDays = 30
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
