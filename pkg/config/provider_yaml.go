package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files.
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a YAML configuration provider.
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{filename: filename}
}

// LoadConfig reads and validates the configuration file.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	raw, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var cfg ConfigData
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the configuration the engine cannot default.
func Validate(cfg *ConfigData) error {
	if cfg.Intersection.Latitude == 0 && cfg.Intersection.Longitude == 0 {
		return fmt.Errorf("intersection.latitude and intersection.longitude must be set")
	}
	seen := map[string]bool{}
	for _, feed := range cfg.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("every feed needs a name")
		}
		if seen[feed.Name] {
			return fmt.Errorf("duplicate feed name %q", feed.Name)
		}
		seen[feed.Name] = true
		switch feed.Type {
		case "fleet":
			if feed.Enabled && feed.URL == "" {
				return fmt.Errorf("fleet feed %q needs a url", feed.Name)
			}
		case "broadcast":
			if feed.Enabled && feed.ListenAddr == "" {
				return fmt.Errorf("broadcast feed %q needs a listen_addr", feed.Name)
			}
		default:
			return fmt.Errorf("feed %q has unknown type %q", feed.Name, feed.Type)
		}
	}
	return nil
}
