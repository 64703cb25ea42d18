// Package config loads the nao project configuration (nao_config.yaml)
// and describes the capabilities of the supported database backends.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/life4/genesis/slices"
	"gopkg.in/yaml.v3"
)

const ConfigFileName = "nao_config.yaml"

// ============================================================================
// PROJECT CONFIGURATION
// ============================================================================

type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model,omitempty"`
}

// APIKeyEnvVar returns the environment variable name the chat server
// expects the provider credential under, e.g. OPENAI_API_KEY.
func (l LLMConfig) APIKeyEnvVar() string {
	return strings.ToUpper(l.Provider) + "_API_KEY"
}

type DatabaseEntry struct {
	Name string `yaml:"name"`
	Type Kind   `yaml:"type"`
	// DatabaseID is the execution-server identifier for this connection.
	// Empty means the server's default connection.
	DatabaseID string `yaml:"database_id,omitempty"`
}

type NaoConfig struct {
	ProjectName string            `yaml:"project_name"`
	LLM         *LLMConfig        `yaml:"llm,omitempty"`
	Databases   []DatabaseEntry   `yaml:"databases,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"`
}

// DefaultDatabase returns the first configured database entry, or nil when
// the project relies on the execution server's default connection.
func (c *NaoConfig) DefaultDatabase() *DatabaseEntry {
	if len(c.Databases) == 0 {
		return nil
	}
	return &c.Databases[0]
}

// Load reads nao_config.yaml from dir.
func Load(dir string) (*NaoConfig, error) {
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFileName, err)
	}

	var cfg NaoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}
	if cfg.ProjectName == "" {
		return nil, fmt.Errorf("%s is missing required field 'project_name'", ConfigFileName)
	}
	for _, db := range cfg.Databases {
		if _, ok := BackendFor(db.Type); !ok {
			supported := slices.Map(SupportedKinds(), func(k Kind) string { return string(k) })
			return nil, fmt.Errorf("%s: database %q has unsupported type %q, supported types are %s",
				ConfigFileName, db.Name, db.Type, strings.Join(supported, ", "))
		}
	}

	return &cfg, nil
}

// Save writes the configuration to nao_config.yaml in dir.
func (c *NaoConfig) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFileName, err)
	}
	return nil
}
