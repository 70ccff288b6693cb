package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds host-level settings that are not part of any single
// match, most importantly the operator allowlist for privileged commands.
type ServerConfig struct {
	Admins []string `yaml:"admins"`
}

// LoadServerConfig reads the server config from a YAML file. A missing file
// is not an error; it yields an empty config with no admins.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ServerConfig{}, nil
		}
		return nil, fmt.Errorf("read server config %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return &cfg, nil
}

// IsAdmin reports whether a platform user ID is on the operator allowlist.
func (c *ServerConfig) IsAdmin(steamID string) bool {
	for _, id := range c.Admins {
		if id == steamID {
			return true
		}
	}
	return false
}
