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
	Hosting struct {
		BaseURL string `koanf:"base_url"`
		Owner   string `koanf:"owner"`
		Repo    string `koanf:"repo"`
		Token   string `koanf:"token"`
	} `koanf:"hosting"`

	AI struct {
		Provider    string  `koanf:"provider"`
		APIKey      string  `koanf:"api_key"`
		BaseURL     string  `koanf:"base_url"`
		Model       string  `koanf:"model"`
		Temperature float64 `koanf:"temperature"`
	} `koanf:"ai"`

	Ticket struct {
		BaseURL string `koanf:"base_url"`
		User    string `koanf:"user"`
		Token   string `koanf:"token"`
	} `koanf:"ticket"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`
}

// Load loads the configuration from a file with env overrides
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"hosting.base_url": "https://api.github.com",
		"ai.provider":      "openai",
		"ai.temperature":   0.2,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./mergegate.toml", "$HOME/.mergegate.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix MERGEGATE_
	k.Load(env.Provider("MERGEGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MERGEGATE_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// Init writes a starter configuration file
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# mergegate configuration

[hosting]
base_url = "https://api.github.com"
owner = "your-org"
repo = "your-repo"
token = "your-hosting-token"

[ai]
provider = "openai"
api_key = "your-ai-api-key"
model = "gpt-4o-mini"
temperature = 0.2

[ticket]
base_url = ""
user = ""
token = ""

[database]
url = ""
`

	return os.WriteFile(configPath, []byte(sample), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Hosting.Owner == "" || config.Hosting.Repo == "" {
		return fmt.Errorf("hosting owner and repo are required")
	}

	if config.Hosting.Token == "" {
		return fmt.Errorf("hosting token is required")
	}

	if config.AI.Provider == "" {
		return fmt.Errorf("ai provider is required")
	}

	switch config.AI.Provider {
	case "openai", "claude", "gemini":
		if config.AI.APIKey == "" {
			return fmt.Errorf("%s api_key is required", config.AI.Provider)
		}
	case "ollama":
		// Local server, no key required
	default:
		return fmt.Errorf("unsupported ai provider %q", config.AI.Provider)
	}

	return nil
}
