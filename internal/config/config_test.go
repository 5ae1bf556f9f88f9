package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	PathEnv, "PRDASH_ENV", "PRDASH_ORG", "GITHUB_TOKEN", "VITE_GITHUB_TOKEN",
	"PRDASH_GITHUB_ENDPOINT", "PRDASH_LIST_LIMIT", "PRDASH_GITHUB_TIMEOUT",
	"PRDASH_PAGE_SIZE", "PRDASH_CONCURRENCY", "PRDASH_MAX_RETRIES", "PRDASH_MIN_INTERVAL",
	"PRDASH_CACHE_PATH", "PRDASH_CACHE_MAX_AGE", "PRDASH_CACHE_MAX_SIZE", "PRDASH_CACHE_QUOTA",
	"PRDASH_HTTP_ADDRESS", "PRDASH_HTTP_TIMEOUT", "PRDASH_HTTP_IDLE_TIMEOUT",
}

// clearEnv unsets every variable Load reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, "https://api.github.com/graphql", cfg.GitHub.Endpoint)
	assert.Equal(t, 10, cfg.GitHub.ListLimit)
	assert.Equal(t, 100, cfg.Crawl.PageSize)
	assert.Equal(t, 10, cfg.Crawl.Concurrency)
	assert.Equal(t, 3, cfg.Crawl.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Crawl.MinInterval)
	assert.Equal(t, 30*time.Minute, cfg.Cache.MaxAge)
	assert.EqualValues(t, 5*1024*1024, cfg.Cache.MaxSize)
	assert.Equal(t, "localhost:8080", cfg.HTTP.Address)
	assert.Empty(t, cfg.GitHub.Token)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "prdash.yaml", `
env: prod
org: acme
crawl:
  page_size: 50
  concurrency: 4
cache:
  max_age: 10m
  path: /tmp/x.db
http:
  address: ":9090"
`)

	cfg, err := Load(path, noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, "acme", cfg.Org)
	assert.Equal(t, 50, cfg.Crawl.PageSize)
	assert.Equal(t, 4, cfg.Crawl.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, "/tmp/x.db", cfg.Cache.Path)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, 3, cfg.Crawl.MaxRetries, "unset fields keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "prdash.yaml", "org: from-file\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("", noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Org)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "prdash.yaml", "org: from-file\ncrawl:\n  page_size: 50\n")
	t.Setenv("PRDASH_ORG", "from-env")
	t.Setenv("PRDASH_PAGE_SIZE", "20")

	cfg, err := Load(path, noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Org)
	assert.Equal(t, 20, cfg.Crawl.PageSize)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noDotenv(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Token(t *testing.T) {
	t.Run("github token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GITHUB_TOKEN", "ghp_primary")
		t.Setenv("VITE_GITHUB_TOKEN", "ghp_vite")

		cfg, err := Load("", noDotenv(t))
		require.NoError(t, err)
		assert.Equal(t, "ghp_primary", cfg.GitHub.Token)
	})

	t.Run("vite fallback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("VITE_GITHUB_TOKEN", "ghp_vite")

		cfg, err := Load("", noDotenv(t))
		require.NoError(t, err)
		assert.Equal(t, "ghp_vite", cfg.GitHub.Token)
	})

	t.Run("yaml is ignored", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "prdash.yaml", "github:\n  token: leaked\n")

		cfg, err := Load(path, noDotenv(t))
		require.NoError(t, err)
		assert.Empty(t, cfg.GitHub.Token)
	})
}

func TestLoad_Dotenv(t *testing.T) {
	clearEnv(t)
	dotenv := writeFile(t, ".env", "VITE_GITHUB_TOKEN=ghp_dotenv\nPRDASH_ORG=dotenv-org\n")
	t.Setenv("PRDASH_ORG", "real-env")

	cfg, err := Load("", dotenv)
	require.NoError(t, err)

	assert.Equal(t, "ghp_dotenv", cfg.GitHub.Token)
	assert.Equal(t, "real-env", cfg.Org, "dotenv never overrides the environment")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	cfg, err := Load("", noDotenv(t))
	require.NoError(t, err)
	cfg.Org = "acme"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())
}

func TestValidate_OrgMatchesGitHubLogins(t *testing.T) {
	for _, org := range []string{"a", "acme", "acme-corp", "a1-b2-c3", strings.Repeat("a", 39)} {
		cfg := validConfig(t)
		cfg.Org = org
		assert.NoError(t, cfg.Validate(), org)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty org", func(c *Config) { c.Org = "" }, "org"},
		{"bad org", func(c *Config) { c.Org = "-acme" }, "org"},
		{"org with trailing hyphen", func(c *Config) { c.Org = "acme-" }, "org"},
		{"org with double hyphen", func(c *Config) { c.Org = "ac--me" }, "org"},
		{"org too long", func(c *Config) { c.Org = strings.Repeat("a", 40) }, "org"},
		{"unknown env", func(c *Config) { c.Env = "staging" }, "env"},
		{"page size too large", func(c *Config) { c.Crawl.PageSize = 101 }, "page_size"},
		{"page size zero", func(c *Config) { c.Crawl.PageSize = 0 }, "page_size"},
		{"concurrency too large", func(c *Config) { c.Crawl.Concurrency = 11 }, "concurrency"},
		{"negative retries", func(c *Config) { c.Crawl.MaxRetries = -1 }, "max_retries"},
		{"zero max age", func(c *Config) { c.Cache.MaxAge = 0 }, "max_age_ms"},
		{"zero max size", func(c *Config) { c.Cache.MaxSize = 0 }, "max_size"},
		{"empty cache path", func(c *Config) { c.Cache.Path = "" }, "path"},
		{"endpoint scheme", func(c *Config) { c.GitHub.Endpoint = "ftp://example.com" }, "endpoint"},
		{"list limit", func(c *Config) { c.GitHub.ListLimit = 0 }, "list_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.Crawl.PageSize = 500
	cfg.Crawl.Concurrency = 50

	err := cfg.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Problems), 2)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(EnvProd, false, &buf).Info("hello", "org", "acme")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "acme", line["org"])

	buf.Reset()
	NewLogger(EnvProd, false, &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	NewLogger(EnvProd, true, &buf).Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	NewLogger(EnvDev, false, &buf).Debug("dev")
	assert.Contains(t, buf.String(), `"msg":"dev"`)

	buf.Reset()
	NewLogger(EnvLocal, false, &buf).Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}
