// Package config models xcd's on-disk configuration file, grounded on
// xc::config::XcConfig in the original implementation. Unlike the
// original's JSON-with-serde-defaults, the file is YAML here, matching the
// teacher repo's gopkg.in/yaml.v3 usage.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Network describes one entry of the inventory's network pool: a bridge
// plus the CIDR it allocates addresses from.
type Network struct {
	Bridge string `yaml:"bridge"`
	Subnet string `yaml:"subnet"`
	Gateway string `yaml:"gateway,omitempty"`
}

// Config is the daemon's top-level configuration, grounded on
// xc::config::XcConfig with one-for-one field names.
type Config struct {
	ExtIfs             []string           `yaml:"ext_ifs"`
	ImageDataset       string             `yaml:"image_dataset"`
	ContainerDataset   string             `yaml:"container_dataset"`
	ImageDatabaseStore string             `yaml:"image_database_store"`
	LayersDir          string             `yaml:"layers_dir"`
	LogsDir            string             `yaml:"logs_dir"`
	DevfsIDOffset      uint16             `yaml:"devfs_id_offset"`
	DatabaseStore      string             `yaml:"database_store"`
	SocketPath         string             `yaml:"socket_path"`
	Networks           map[string]Network `yaml:"networks"`
	Registries         string             `yaml:"registries"`
	ForceDevfsRuleset  *uint16            `yaml:"force_devfs_ruleset,omitempty"`
}

// Defaults returns a Config pre-populated with the same defaults the
// original XcConfig derives via serde(default = ...).
func Defaults() Config {
	return Config{
		ImageDatabaseStore: "/var/db/xc.sqlite",
		LayersDir:           "/var/cache",
		LogsDir:             "/var/log/xc",
		DevfsIDOffset:       1000,
		DatabaseStore:       "/var/db/xc.sqlite",
		SocketPath:          "/var/run/xc.sock",
		Registries:          "/var/db/xc.registries.json",
		Networks:            map[string]Network{},
	}
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	f, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ImageDataset == "" {
		return fmt.Errorf("config: image_dataset is required")
	}
	if c.ContainerDataset == "" {
		return fmt.Errorf("config: container_dataset is required")
	}
	return nil
}
