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

// Config represents the process-level application configuration. Per-app
// behavior tuning lives in the external store, not here.
type Config struct {
	Server struct {
		Port      int     `koanf:"port"`
		RateLimit float64 `koanf:"rate_limit"` // requests per second per client IP
	} `koanf:"server"`

	Store struct {
		URL    string `koanf:"url"`
		APIKey string `koanf:"api_key"`
	} `koanf:"store"`

	AI struct {
		Provider string `koanf:"provider"`
		APIKey   string `koanf:"api_key"`
		BaseURL  string `koanf:"base_url"`
		Model    string `koanf:"model"`
	} `koanf:"ai"`

	Agent struct {
		URL string `koanf:"url"`
	} `koanf:"agent"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

// LoadConfig loads the configuration from a file, layered over defaults and
// under CONSOLE_-prefixed environment variables.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":       8084,
		"server.rate_limit": 10.0,
		"ai.provider":       "openai",
		"ai.model":          "gpt-4o-mini",
		"log.level":         "info",
		"log.pretty":        false,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./console.toml", "$HOME/.console.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix CONSOLE_
	k.Load(env.Provider("CONSOLE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CONSOLE_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Console Configuration

[server]
port = 8084
rate_limit = 10.0

[store]
url = "https://your-project.supabase.co"
api_key = "your-service-role-key"

[ai]
provider = "openai"
api_key = "your-llm-api-key"
model = "gpt-4o-mini"

[agent]
url = "https://agent.example.com/api/generate"

[log]
level = "info"
pretty = false
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Store.URL == "" {
		return fmt.Errorf("store url is required")
	}
	if config.Store.APIKey == "" {
		return fmt.Errorf("store api_key is required")
	}
	if config.AI.Provider == "" {
		return fmt.Errorf("ai provider is required")
	}
	if config.AI.Provider != "ollama" && config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required for provider %s", config.AI.Provider)
	}
	if config.Agent.URL == "" {
		return fmt.Errorf("agent url is required")
	}
	return nil
}
