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
	Server struct {
		Port int    `koanf:"port"`
		Host string `koanf:"host"`
	} `koanf:"server"`

	AI struct {
		Provider         string  `koanf:"provider"`
		Model            string  `koanf:"model"`
		APIKey           string  `koanf:"api_key"`
		BaseURL          string  `koanf:"base_url"`
		Temperature      float64 `koanf:"temperature"`
		TimeoutSeconds   int     `koanf:"timeout_seconds"`
		FallbackResponse string  `koanf:"fallback_response"`
	} `koanf:"ai"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Catalog struct {
		BaseURL        string  `koanf:"base_url"`
		RatePerSecond  float64 `koanf:"rate_per_second"`
		TimeoutSeconds int     `koanf:"timeout_seconds"`
	} `koanf:"catalog"`

	OCR struct {
		BaseURL        string `koanf:"base_url"`
		TimeoutSeconds int    `koanf:"timeout_seconds"`
	} `koanf:"ocr"`

	Auth struct {
		JWTSecret string `koanf:"jwt_secret"`
	} `koanf:"auth"`

	Retention struct {
		PurgeEnabled bool `koanf:"purge_enabled"`
		WindowDays   int  `koanf:"window_days"`
	} `koanf:"retention"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":            8080,
		"server.host":            "0.0.0.0",
		"ai.provider":            "openai",
		"ai.model":               "gpt-4o-mini",
		"ai.temperature":         0.3,
		"ai.timeout_seconds":     60,
		"ai.fallback_response":   "抱歉，我暂时无法回答您的问题，请稍后再试。如症状紧急，请尽快前往医院就诊。",
		"redis.addr":             "localhost:6379",
		"catalog.rate_per_second": 5.0,
		"catalog.timeout_seconds": 10,
		"ocr.timeout_seconds":    30,
		"retention.purge_enabled": false,
		"retention.window_days":   180,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations - prioritize mcdata directory for containerized environments
		defaultPaths := []string{"./mcdata/mediconsult.toml", "./mediconsult.toml", "$HOME/.mediconsult.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix MEDICONSULT_
	k.Load(env.Provider("MEDICONSULT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MEDICONSULT_")), "_", ".", -1)
	}), nil)

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
	sampleConfig := `# MediConsult Configuration

[server]
port = 8080
host = "0.0.0.0"

[ai]
provider = "openai"
model = "gpt-4o-mini"
api_key = "your-api-key"
temperature = 0.3
timeout_seconds = 60

[redis]
addr = "localhost:6379"

[catalog]
base_url = "http://localhost:9001"

[ocr]
base_url = "http://localhost:9002"

[auth]
jwt_secret = "change-me"

[retention]
purge_enabled = false
window_days = 180
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.AI.Provider == "" {
		return fmt.Errorf("ai provider is required")
	}

	switch config.AI.Provider {
	case "openai", "googleai", "anthropic":
		if config.AI.APIKey == "" {
			return fmt.Errorf("%s api_key is required", config.AI.Provider)
		}
	case "ollama", "compat":
		if config.AI.BaseURL == "" {
			return fmt.Errorf("%s base_url is required", config.AI.Provider)
		}
	default:
		return fmt.Errorf("unknown ai provider %q", config.AI.Provider)
	}

	if config.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}

	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}

	return nil
}
