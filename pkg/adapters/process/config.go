package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ComponentConfig describes a component implemented by an external command.
type ComponentConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	InPorts     []string          `yaml:"inports" json:"inports"`
	OutPorts    []string          `yaml:"outports" json:"outports"`
}

// ConfigFile represents the structure of components.yaml
type ConfigFile struct {
	Components []ComponentConfig `yaml:"components" json:"components"`
}

// LoadComponents reads a configuration file (YAML or JSON) and returns a map
// of component names to configs. A missing file yields an empty map.
func LoadComponents(path string) (map[string]ComponentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ComponentConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read components config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	components := make(map[string]ComponentConfig)
	for _, c := range cfg.Components {
		if c.Name == "" || c.Command == "" {
			continue
		}
		components[c.Name] = c
	}
	return components, nil
}
