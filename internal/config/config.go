package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// SubscriberID overrides the netlink subscriber id. Zero means
	// "use this process's pid", which is the safe default; explicit ids
	// are mostly useful when running several watchers on one machine.
	SubscriberID uint32 `yaml:"subscriber_id,omitempty"`

	MetricsAddr string `yaml:"metrics_addr"`

	// OutputFile is the JSON lines event log. Empty disables it.
	OutputFile string `yaml:"output_file,omitempty"`
}

func Default() *Config {
	return &Config{MetricsAddr: ":9101"}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = Default().MetricsAddr
	}
	return cfg, nil
}
