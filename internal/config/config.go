package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Weather  WeatherConfig  `mapstructure:"weather" yaml:"weather"`
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"` // default 7117
	Host string `mapstructure:"host" yaml:"host" validate:"required"`        // default "127.0.0.1"
}

type StoreConfig struct {
	Type    string      `mapstructure:"type" yaml:"type" validate:"oneof=memory bolt redis"` // default "bolt"
	DataDir string      `mapstructure:"data_dir" yaml:"data_dir"`                            // default "~/.stratus/data"
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"` // default "127.0.0.1:6379"
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"` // default "stratus"
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider" validate:"oneof=anthropic openai cli static"` // default "anthropic"
	Model           string        `mapstructure:"model" yaml:"model" validate:"required"`
	MaxTokens       int           `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	MaxSteps        int           `mapstructure:"max_steps" yaml:"max_steps" validate:"min=1"` // tool-use turns per Generate
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key" yaml:"-"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key" yaml:"-"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
	ClaudeCLI       string        `mapstructure:"claude_cli" yaml:"claude_cli"` // path to claude binary, resolved via PATH
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type WeatherConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	GeocodeURL string        `mapstructure:"geocode_url" yaml:"geocode_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0"`
}

type WorkflowConfig struct {
	// Root sandboxes every path handed to the directory tools.
	Root         string        `mapstructure:"root" yaml:"root"`
	Workers      int           `mapstructure:"workers" yaml:"workers" validate:"min=1"`
	StepRetries  int           `mapstructure:"step_retries" yaml:"step_retries" validate:"min=0"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	StaleAfter   time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"` // default "info"
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`        // default "console"
	Name   string `mapstructure:"name" yaml:"name"`                                          // default "stratus"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7117,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Type:    "bolt",
			DataDir: defaultDataDir(),
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "stratus",
			},
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			MaxSteps:  5,
			ClaudeCLI: "claude",
			Timeout:   2 * time.Minute,
		},
		Weather: WeatherConfig{
			BaseURL:    "https://api.open-meteo.com/v1",
			GeocodeURL: "https://geocoding-api.open-meteo.com/v1",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Workflow: WorkflowConfig{
			Root:         ".",
			Workers:      2,
			StepRetries:  0,
			RetryDelay:   time.Second,
			StaleAfter:   15 * time.Minute,
			ReapInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Name:   "stratus",
		},
	}
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServerURL returns the base URL clients use to reach the API server.
func (c *Config) ServerURL() string {
	return "http://" + c.ServerAddress()
}

// DBPath returns the full path to the BoltDB file.
func (c *Config) DBPath() string {
	return c.Store.DBPath()
}

// DBPath returns DataDir + "/stratus.db".
func (s StoreConfig) DBPath() string {
	return filepath.Join(s.DataDir, "stratus.db")
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.stratus/data", falling back to
// "/tmp/stratus/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "stratus", "data")
	}
	return filepath.Join(home, ".stratus", "data")
}
