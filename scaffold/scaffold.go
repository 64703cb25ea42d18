// Package scaffold creates the starter layout for a new nao project.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aymerick/raymond"
	"github.com/getnao/nao-cli/config"
	"github.com/getnao/nao-cli/logger"
)

const configTemplate = `project_name: {{name}}

# Uncomment and fill in to run 'nao test' against an agent.
# llm:
#   provider: anthropic
#   model: claude-sonnet-4-5
#
# databases:
#   - name: warehouse
#     type: duckdb
#     database_id: warehouse

# Variables are substituted into test prompts and SQL with {{open}}var{{close}} syntax.
# variables:
#   dataset: analytics
`

const exampleTest = `name: example_count
prompt: How many rows are in the orders table?
sql: SELECT COUNT(*) AS order_count FROM orders
`

const gitignore = `.nao-secret
*.log
report.html
`

// CreateProject lays out a new project under dir. It refuses to touch a
// directory that already holds a nao config so a stray init cannot
// clobber an existing project.
func CreateProject(dir, name string) error {
	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists in %s", config.ConfigFileName, dir)
	}

	for _, sub := range []string{"models", "tests"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	content, err := raymond.Render(configTemplate, map[string]string{
		"name":  name,
		"open":  "{{",
		"close": "}}",
	})
	if err != nil {
		return fmt.Errorf("failed to render config template: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.ConfigFileName, err)
	}

	testPath := filepath.Join(dir, "tests", "example_count.yml")
	if err := os.WriteFile(testPath, []byte(exampleTest), 0644); err != nil {
		return fmt.Errorf("failed to write example test: %w", err)
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte(gitignore), 0644); err != nil {
			return fmt.Errorf("failed to write .gitignore: %w", err)
		}
	}

	logger.Logger.Info("project created", "name", name, "path", dir)
	return nil
}
