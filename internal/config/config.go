package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	GitHub struct {
		Token      string `koanf:"token"`
		GraphQLURL string `koanf:"graphql_url"`
	} `koanf:"github"`

	AI struct {
		Provider    string  `koanf:"provider"`
		APIKey      string  `koanf:"api_key"`
		Model       string  `koanf:"model"`
		BaseURL     string  `koanf:"base_url"`
		Temperature float64 `koanf:"temperature"`
		MaxTokens   int     `koanf:"max_tokens"`
	} `koanf:"ai"`

	Executor struct {
		Backend  string `koanf:"backend"`
		MaxTurns int    `koanf:"max_turns"`
		MaxFiles int    `koanf:"max_files"`
	} `koanf:"executor"`

	Workspace struct {
		Root string `koanf:"root"`
	} `koanf:"workspace"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"github.graphql_url": "https://api.github.com/graphql",
		"ai.provider":        "openai",
		"ai.model":           "gpt-4o-mini",
		"ai.temperature":     0.2,
		"ai.max_tokens":      4096,
		"executor.backend":   "agent",
		"executor.max_turns": 25,
		"executor.max_files": 10,
		"workspace.root":     "/tmp/agent_repos",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./reviewpilot.toml", "$HOME/.reviewpilot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWPILOT_. Leaf
	// keys contain underscores (api_key, max_tokens, graphql_url), so
	// only the first underscore separates the section from the key:
	// REVIEWPILOT_AI_API_KEY -> ai.api_key.
	k.Load(env.Provider("REVIEWPILOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REVIEWPILOT_")), "_", ".", 1)
	}), nil)

	// GITHUB_TOKEN is honored as a fallback so the tool works with the
	// same environment the gh CLI uses.
	if k.String("github.token") == "" {
		if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
			k.Load(confmap.Provider(map[string]interface{}{
				"github.token": tok,
			}, "."), nil)
		}
	}

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# ReviewPilot Configuration

[github]
token = "your-github-token"
graphql_url = "https://api.github.com/graphql"

[ai]
provider = "openai"
api_key = "your-api-key"
model = "gpt-4o-mini"
temperature = 0.2

[executor]
backend = "agent"
max_turns = 25
max_files = 10

[workspace]
root = "/tmp/agent_repos"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.GitHub.Token == "" {
		return fmt.Errorf("github token is required (set github.token or GITHUB_TOKEN)")
	}

	if config.AI.Provider == "" {
		return fmt.Errorf("AI provider is required")
	}

	switch config.AI.Provider {
	case "openai", "googleai", "claude", "ollama":
	default:
		return fmt.Errorf("unsupported AI provider: %s", config.AI.Provider)
	}

	if config.AI.Provider != "ollama" && config.AI.APIKey == "" {
		return fmt.Errorf("api key for AI provider %s is required", config.AI.Provider)
	}

	switch config.Executor.Backend {
	case "agent", "oneshot":
	default:
		return fmt.Errorf("unsupported executor backend: %s (use 'agent' or 'oneshot')", config.Executor.Backend)
	}

	if config.Workspace.Root == "" {
		return fmt.Errorf("workspace root is required")
	}

	return nil
}
