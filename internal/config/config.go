// Package config loads gentleman's settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults used by the original service.
const (
	DefaultProvider = "hf"
	DefaultModel    = "meta-llama/Llama-3.1-8B-Instruct"
	DefaultBaseURL  = "https://router.huggingface.co/v1"
)

// MaxQuotaRetriesLimit is the largest accepted max_quota_retries; the backoff
// doubles per retry.
const MaxQuotaRetriesLimit = 30

// Config is the full configuration.
type Config struct {
	Provider string `yaml:"provider"` // hf, openai, gemini
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`

	MaxAttempts     int           `yaml:"max_attempts"`
	MaxQuotaRetries int           `yaml:"max_quota_retries"`
	QuotaBaseDelay  time.Duration `yaml:"quota_base_delay"`

	Description DescriptionConfig `yaml:"description"`
	MaxTags     int               `yaml:"max_tags"`
	TypeDepth   int               `yaml:"type_depth"`

	// RatePerSecond caps collaborator round-trips; 0 disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	Workers       int     `yaml:"workers"`
	MaxFileSize   int64   `yaml:"max_file_size"`

	// Prompts is an optional prompt bundle path; empty uses the built-in one.
	Prompts string `yaml:"prompts"`

	Server ServerConfig `yaml:"server"`
}

// DescriptionConfig bounds description length in characters.
type DescriptionConfig struct {
	MinLen int `yaml:"min_len"`
	MaxLen int `yaml:"max_len"`
}

// ServerConfig configures the HTTP request surface.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	UploadDir string `yaml:"upload_dir"`
	CacheSize int    `yaml:"cache_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:        DefaultProvider,
		Model:           DefaultModel,
		BaseURL:         DefaultBaseURL,
		MaxAttempts:     7,
		MaxQuotaRetries: 5,
		QuotaBaseDelay:  time.Second,
		Description:     DescriptionConfig{MinLen: 50, MaxLen: 200},
		MaxTags:         5,
		TypeDepth:       2,
		Burst:           1,
		Workers:         4,
		MaxFileSize:     1_000_000,
		Server: ServerConfig{
			Addr:      ":8000",
			UploadDir: "code",
			CacheSize: 128,
		},
	}
}

// Load returns Default overlaid with the YAML file at path (if any) and
// then the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from the environment. The credential is read
// from the variable matching the selected provider.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("GENTLEMAN_PROVIDER"); ok && v != "" {
		c.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("GENTLEMAN_MODEL"); ok && v != "" {
		c.Model = strings.TrimSpace(v)
	}
	if c.Token != "" {
		return
	}
	key := "HF_TOKEN"
	switch c.Provider {
	case "gemini":
		key = "GEMINI_API_KEY"
	case "openai":
		key = "OPENAI_API_KEY"
	}
	if v, ok := lookup(key); ok {
		c.Token = strings.TrimSpace(v)
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Provider {
	case "hf", "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.MaxQuotaRetries < 0 || c.MaxQuotaRetries > MaxQuotaRetriesLimit {
		return fmt.Errorf("config: max_quota_retries must be in [0, %d], got %d", MaxQuotaRetriesLimit, c.MaxQuotaRetries)
	}
	if c.QuotaBaseDelay <= 0 {
		return fmt.Errorf("config: quota_base_delay must be positive, got %s", c.QuotaBaseDelay)
	}
	if c.Description.MinLen < 0 || c.Description.MaxLen < c.Description.MinLen {
		return fmt.Errorf("config: description bounds [%d, %d] are invalid", c.Description.MinLen, c.Description.MaxLen)
	}
	if c.MaxTags < 1 {
		return fmt.Errorf("config: max_tags must be at least 1, got %d", c.MaxTags)
	}
	if c.TypeDepth < 0 {
		return fmt.Errorf("config: type_depth must not be negative, got %d", c.TypeDepth)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("config: rate_per_second must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.Server.CacheSize < 0 {
		return fmt.Errorf("config: server.cache_size must not be negative")
	}
	return nil
}
