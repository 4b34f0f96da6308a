// Package config loads server configuration from the environment and an
// optional platform rules file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. HOSTDESK_SERVER_ADDR.
const EnvPrefix = "HOSTDESK"

// Config is the complete server configuration.
type Config struct {
	Server struct {
		Addr      string `envconfig:"ADDR" default:":8099"`
		LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
		StaticDir string `envconfig:"STATIC_DIR" default:"./static"`
	} `envconfig:"SERVER"`

	Data struct {
		Dir string `envconfig:"DIR" default:"/data"`
	} `envconfig:"DATA"`

	Sync struct {
		FetchTimeout            time.Duration `envconfig:"FETCH_TIMEOUT" default:"20s"`
		RunTimeout              time.Duration `envconfig:"RUN_TIMEOUT" default:"10m"`
		MaxConcurrentFetches    int           `envconfig:"MAX_CONCURRENT_FETCHES" default:"4"`
		MaxConcurrentProperties int           `envconfig:"MAX_CONCURRENT_PROPERTIES" default:"2"`
		Schedule                string        `envconfig:"SCHEDULE" default:"@every 30m"`
		MaxFeedBytes            int64         `envconfig:"MAX_FEED_BYTES" default:"5242880"`
	} `envconfig:"SYNC"`

	Redis struct {
		Addr     string        `envconfig:"ADDR"`
		Password string        `envconfig:"PASSWORD"`
		DB       int           `envconfig:"DB" default:"0"`
		LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"15m"`
	} `envconfig:"REDIS"`

	// PlatformsFile points at a YAML file of per-platform extraction rules.
	PlatformsFile string `envconfig:"PLATFORMS_FILE"`

	// Platforms is loaded from PlatformsFile.
	Platforms map[string]PlatformRules `ignored:"true"`
}

// PlatformRules overrides the extraction rules of one platform.
type PlatformRules struct {
	BlockedMarkers   []string `yaml:"blocked_markers"`
	NamePrefixes     []string `yaml:"name_prefixes"`
	NameFromAttendee bool     `yaml:"name_from_attendee"`
}

type platformsFile struct {
	Platforms map[string]PlatformRules `yaml:"platforms"`
}

// Load reads .env (when present), the environment and the platform rules file.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("could not load .env file, continuing with existing environment variables")
		}
	} else {
		log.Info().Msg("loaded variables from .env file")
	}

	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if cfg.PlatformsFile != "" {
		platforms, err := LoadPlatforms(cfg.PlatformsFile)
		if err != nil {
			return nil, err
		}
		cfg.Platforms = platforms
	}

	return cfg, nil
}

// LoadPlatforms parses a YAML platform rules file:
//
//	platforms:
//	  airbnb:
//	    blocked_markers: ["Not available"]
//	    name_prefixes: ["Reserved -"]
func LoadPlatforms(path string) (map[string]PlatformRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading platforms file: %w", err)
	}

	var file platformsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing platforms file %s: %w", path, err)
	}

	platforms := make(map[string]PlatformRules, len(file.Platforms))
	for name, rules := range file.Platforms {
		platforms[strings.ToLower(strings.TrimSpace(name))] = rules
	}
	return platforms, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is empty"))
	}
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if c.Sync.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync fetch timeout must be positive, got %s", c.Sync.FetchTimeout))
	}
	if c.Sync.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync run timeout must be positive, got %s", c.Sync.RunTimeout))
	}
	if c.Sync.MaxConcurrentFetches <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent fetches must be positive, got %d", c.Sync.MaxConcurrentFetches))
	}
	if c.Sync.MaxConcurrentProperties <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent properties must be positive, got %d", c.Sync.MaxConcurrentProperties))
	}
	if c.Sync.MaxFeedBytes <= 0 {
		errs = append(errs, fmt.Errorf("max feed bytes must be positive, got %d", c.Sync.MaxFeedBytes))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("redis lock ttl must be positive, got %s", c.Redis.LockTTL))
	}

	return errors.Join(errs...)
}
