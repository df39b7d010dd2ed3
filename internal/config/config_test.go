package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", cfg.Model)
	assert.Equal(t, "https://router.huggingface.co/v1", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 5, cfg.MaxQuotaRetries)
	assert.Equal(t, time.Second, cfg.QuotaBaseDelay)
	assert.Equal(t, 50, cfg.Description.MinLen)
	assert.Equal(t, 200, cfg.Description.MaxLen)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gentleman.yaml")
	yml := `
provider: gemini
model: gemini-2.5-pro
max_attempts: 3
quota_base_delay: 250ms
description:
  min_len: 10
  max_len: 90
server:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.QuotaBaseDelay)
	assert.Equal(t, DescriptionConfig{MinLen: 10, MaxLen: 90}, cfg.Description)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "code", cfg.Server.UploadDir, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.MaxQuotaRetries)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: carrier-pigeon\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"HF_TOKEN":        " hf_abc ",
		"GENTLEMAN_MODEL": "Qwen/Qwen2.5-7B-Instruct",
	}))
	assert.Equal(t, "hf_abc", cfg.Token)
	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", cfg.Model)
}

func TestApplyEnvProviderSelectsCredential(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"GENTLEMAN_PROVIDER": "Gemini",
		"HF_TOKEN":           "hf",
		"GEMINI_API_KEY":     "gm",
	}))
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gm", cfg.Token)
}

func TestApplyEnvKeepsExplicitToken(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Token = "from-file"
	cfg.ApplyEnv(envMap(map[string]string{"HF_TOKEN": "env"}))
	assert.Equal(t, "from-file", cfg.Token)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"quota retries", func(c *Config) { c.MaxQuotaRetries = -1 }},
		{"quota retries above limit", func(c *Config) { c.MaxQuotaRetries = MaxQuotaRetriesLimit + 1 }},
		{"delay", func(c *Config) { c.QuotaBaseDelay = 0 }},
		{"description bounds", func(c *Config) { c.Description = DescriptionConfig{MinLen: 100, MaxLen: 10} }},
		{"tags", func(c *Config) { c.MaxTags = 0 }},
		{"depth", func(c *Config) { c.TypeDepth = -1 }},
		{"rate", func(c *Config) { c.RatePerSecond = -2 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"cache", func(c *Config) { c.Server.CacheSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsQuotaRetriesLimit(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.MaxQuotaRetries = MaxQuotaRetriesLimit
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GENTLEMAN_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("GENTLEMAN_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("GENTLEMAN_TEST_DOTENV"))
}
