// Package config loads prdash settings from an optional YAML file, the
// environment and a .env file, and validates them against an embedded CUE
// schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// PathEnv names the variable consulted when no config path is given.
const PathEnv = "PRDASH_CONFIG"

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

//go:embed schema.cue
var schemaSource []byte

type Config struct {
	Env    string       `yaml:"env" env:"PRDASH_ENV" env-default:"local"`
	Org    string       `yaml:"org" env:"PRDASH_ORG"`
	GitHub GitHubConfig `yaml:"github"`
	Crawl  CrawlConfig  `yaml:"crawl"`
	Cache  CacheConfig  `yaml:"cache"`
	HTTP   HTTPConfig   `yaml:"http"`
}

type GitHubConfig struct {
	// Token is never read from the YAML file.
	Token     string        `yaml:"-" env:"GITHUB_TOKEN,VITE_GITHUB_TOKEN"`
	Endpoint  string        `yaml:"endpoint" env:"PRDASH_GITHUB_ENDPOINT" env-default:"https://api.github.com/graphql"`
	ListLimit int           `yaml:"list_limit" env:"PRDASH_LIST_LIMIT" env-default:"10"`
	Timeout   time.Duration `yaml:"timeout" env:"PRDASH_GITHUB_TIMEOUT" env-default:"30s"`
}

type CrawlConfig struct {
	PageSize    int           `yaml:"page_size" env:"PRDASH_PAGE_SIZE" env-default:"100"`
	Concurrency int           `yaml:"concurrency" env:"PRDASH_CONCURRENCY" env-default:"10"`
	MaxRetries  int           `yaml:"max_retries" env:"PRDASH_MAX_RETRIES" env-default:"3"`
	MinInterval time.Duration `yaml:"min_interval" env:"PRDASH_MIN_INTERVAL" env-default:"100ms"`
}

type CacheConfig struct {
	Path    string        `yaml:"path" env:"PRDASH_CACHE_PATH" env-default:"prdash-cache.db"`
	MaxAge  time.Duration `yaml:"max_age" env:"PRDASH_CACHE_MAX_AGE" env-default:"30m"`
	MaxSize int64         `yaml:"max_size" env:"PRDASH_CACHE_MAX_SIZE" env-default:"5242880"`
	// Quota caps the medium itself; 0 means unlimited.
	Quota int64 `yaml:"quota" env:"PRDASH_CACHE_QUOTA" env-default:"0"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env:"PRDASH_HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env:"PRDASH_HTTP_TIMEOUT" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"PRDASH_HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// ValidationError lists every schema violation found in a Config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load reads configuration. Variables from dotenv files (".env" when none
// are given) are loaded first and never override the real environment.
// When path is empty, PRDASH_CONFIG is consulted; with no file at all only
// the environment and defaults apply.
//
// Load does not validate; callers apply overrides and then call Validate.
func Load(path string, dotenv ...string) (*Config, error) {
	const op = "config.Load"

	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: dotenv %s: %w", op, f, err)
		}
	}

	if path == "" {
		path = os.Getenv(PathEnv)
	}

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: config file: %w", op, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", op, path, err)
	}
	return &cfg, nil
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c.values()))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	ve := &ValidationError{}
	for _, e := range cueerrors.Errors(err) {
		ve.Problems = append(ve.Problems, e.Error())
	}
	if len(ve.Problems) == 0 {
		ve.Problems = []string{err.Error()}
	}
	return ve
}

// values mirrors the schema layout. The token is left out; the client
// reports a missing credential before any request.
func (c *Config) values() map[string]any {
	return map[string]any{
		"env": c.Env,
		"org": c.Org,
		"github": map[string]any{
			"endpoint":   c.GitHub.Endpoint,
			"list_limit": c.GitHub.ListLimit,
			"timeout_ms": c.GitHub.Timeout.Milliseconds(),
		},
		"crawl": map[string]any{
			"page_size":       c.Crawl.PageSize,
			"concurrency":     c.Crawl.Concurrency,
			"max_retries":     c.Crawl.MaxRetries,
			"min_interval_ms": c.Crawl.MinInterval.Milliseconds(),
		},
		"cache": map[string]any{
			"path":       c.Cache.Path,
			"max_age_ms": c.Cache.MaxAge.Milliseconds(),
			"max_size":   c.Cache.MaxSize,
			"quota":      c.Cache.Quota,
		},
		"http": map[string]any{
			"address":         c.HTTP.Address,
			"timeout_ms":      c.HTTP.Timeout.Milliseconds(),
			"idle_timeout_ms": c.HTTP.IdleTimeout.Milliseconds(),
		},
	}
}
