package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models shiftline.yml.
type Config struct {
	Engine struct {
		RetryAttempts      int      `yaml:"retry_attempts" json:"retry_attempts"`
		PersistenceTimeout Duration `yaml:"persistence_timeout" json:"persistence_timeout"`
	} `yaml:"engine" json:"engine"`
	Grid struct {
		MaxDays  int `yaml:"max_days" json:"max_days"`
		PageSize int `yaml:"page_size" json:"page_size"`
	} `yaml:"grid" json:"grid"`
	Server struct {
		Addr      string `yaml:"addr" json:"addr"`
		BasePath  string `yaml:"base_path" json:"base_path"`
		RateLimit struct {
			PerSecond         float64 `yaml:"per_second" json:"per_second"`
			Burst             int     `yaml:"burst" json:"burst"`
			TrustForwardedFor bool    `yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
		} `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"server" json:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"-"`
	Operations     []string `yaml:"operations" json:"operations,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Duration accepts Go duration strings in YAML ("5s", "250ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.RetryAttempts < 1 {
		return fmt.Errorf("config.engine.retry_attempts must be >= 1")
	}
	if c.Engine.RetryAttempts > 10 {
		return fmt.Errorf("config.engine.retry_attempts must be <= 10")
	}
	if c.Engine.PersistenceTimeout.Duration <= 0 {
		return fmt.Errorf("config.engine.persistence_timeout must be positive")
	}
	if c.Grid.MaxDays < 1 {
		return fmt.Errorf("config.grid.max_days must be >= 1")
	}
	if c.Grid.PageSize < 1 {
		return fmt.Errorf("config.grid.page_size must be >= 1")
	}
	if c.Server.RateLimit.PerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("config.server.rate_limit values must not be negative")
	}
	if c.Server.RateLimit.PerSecond > 0 && c.Server.RateLimit.Burst == 0 {
		return fmt.Errorf("config.server.rate_limit.burst is required when per_second is set")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhooks[%d].url must be an absolute URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, op := range hook.Operations {
			if op == "" {
				return fmt.Errorf("webhooks[%d] has empty operation filter", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "shiftline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  # attempts for an operation that hits a concurrent write
  retry_attempts: 3
  persistence_timeout: 5s

grid:
  max_days: 93
  page_size: 50

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  rate_limit:
    per_second: 0
    burst: 0
    trust_forwarded_for: false

webhooks: []
`
