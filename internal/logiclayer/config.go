package logiclayer

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/tesseract-olap/tesseract/internal/names"
)

type rawNamedSet struct {
	Level   string   `yaml:"level"`
	Members []string `yaml:"members"`
}

type rawConfig struct {
	Aliases   map[string]string      `yaml:"aliases"`
	NamedSets map[string]rawNamedSet `yaml:"named_sets"`
}

// LoadConfig reads a logic-layer config document (cube aliases and named
// sets) from path, the same os.ReadFile-then-yaml.Unmarshal shape
// internal/config.Load uses for the server's own document. An empty path
// is not an error: it yields a Config with no aliases or named sets.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("logiclayer: reading %q: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("logiclayer: parsing %q: %w", path, err)
	}

	cfg := &Config{
		Aliases:   raw.Aliases,
		NamedSets: make(map[string]NamedSet, len(raw.NamedSets)),
	}
	for name, ns := range raw.NamedSets {
		ln, err := names.ParseLevelName(ns.Level)
		if err != nil {
			return nil, fmt.Errorf("logiclayer: named set %q: %w", name, err)
		}
		cfg.NamedSets[name] = NamedSet{Level: ln, Members: ns.Members}
	}
	return cfg, nil
}
