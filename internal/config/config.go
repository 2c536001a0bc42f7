// Package config decodes the single YAML document that drives a
// tesseract server: listen address, logging, the schema/logic-layer
// file paths, and the named backend connections queries run against.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/tesseract-olap/tesseract/internal/backend"
	chbackend "github.com/tesseract-olap/tesseract/internal/backend/clickhouse"
	mysqlbackend "github.com/tesseract-olap/tesseract/internal/backend/mysql"
	pgbackend "github.com/tesseract-olap/tesseract/internal/backend/postgres"
)

// ServerConfig holds the HTTP-facing settings of a tesseract server.
type ServerConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

// Config is the full decoded document: one YAML file names the server
// settings, the schema document to load, an optional logic-layer
// config, and the set of backend connections cube tables may resolve
// to, each discriminated by its own "kind" field.
type Config struct {
	Server             ServerConfig             `yaml:"server"`
	SchemaPath         string                   `yaml:"schema_path" validate:"required"`
	LogicLayerPath     string                   `yaml:"logic_layer_path"`
	DefaultSource      string                   `yaml:"default_source"`
	GeoserviceURL      string                   `yaml:"geoservice_url"`
	GeoserviceTimeoutS int                      `yaml:"geoservice_timeout_seconds"`
	Sources            map[string]yaml.MapSlice `yaml:"sources"`
}

// Load reads and decodes the config file at path, defaulting any unset
// server field the way the reference toolbox defaults its own
// ServerConfig (address/port/log format/level fall back to sane local
// development values rather than forcing every deployment to repeat
// them).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7000
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "standard"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "INFO"
	}
	return &cfg, nil
}

// BackendConfigs decodes every entry under Sources into a concrete
// backend.Config, dispatching on each entry's "kind" field. New
// dialects register themselves the same way the three built-in ones
// do, by exposing a Kind constant their own package's Config.Kind()
// returns — this switch is the one place that has to know about every
// concrete backend package, since yaml can't decode into an interface
// without being told the concrete type up front.
func (c *Config) BackendConfigs() (map[string]backend.Config, error) {
	out := make(map[string]backend.Config, len(c.Sources))
	for name, raw := range c.Sources {
		body, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("config: re-marshaling source %q: %w", name, err)
		}

		var kindOnly struct {
			Kind string `yaml:"kind"`
		}
		if err := yaml.Unmarshal(body, &kindOnly); err != nil {
			return nil, fmt.Errorf("config: reading kind of source %q: %w", name, err)
		}

		cfg, err := decodeBackendConfig(kindOnly.Kind, name, body)
		if err != nil {
			return nil, fmt.Errorf("config: source %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}

func decodeBackendConfig(kind, name string, body []byte) (backend.Config, error) {
	switch kind {
	case "clickhouse":
		var cfg chbackend.Config
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return nil, err
		}
		cfg.Name = name
		return cfg, nil
	case "postgres":
		var cfg pgbackend.Config
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return nil, err
		}
		cfg.Name = name
		return cfg, nil
	case "mysql":
		var cfg mysqlbackend.Config
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return nil, err
		}
		cfg.Name = name
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}
