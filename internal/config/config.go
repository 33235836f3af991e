package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ralt/depcheck/internal/cache"
	"github.com/ralt/depcheck/internal/models"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "DEPCHECK"

// expiryEnv is the legacy cache expiry variable, in seconds.
const expiryEnv = "DEPCHECK_EXPIRY_SECONDS"

// CacheConfig controls the repodata cache.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir"`
	TTL      time.Duration `mapstructure:"ttl"`
	Disabled bool          `mapstructure:"disabled"`
}

// Config holds all runtime configuration for a run.
// Values are populated from .depcheck.yaml, DEPCHECK_* env vars, and CLI flags.
type Config struct {
	Repos           []string    `mapstructure:"repos"`
	ReposFromSystem bool        `mapstructure:"repos_from_system"`
	Arch            string      `mapstructure:"arch"`
	Output          string      `mapstructure:"output"`
	Jobs            int         `mapstructure:"jobs"`
	MetricsFile     string      `mapstructure:"metrics_file"`
	Solver          string      `mapstructure:"solver"`
	SolverLimit     int         `mapstructure:"solver_limit"`
	Verbose         bool        `mapstructure:"verbose"`
	Cache           CacheConfig `mapstructure:"cache"`
}

// Init points viper at the config file and environment. An explicit file
// must exist; the default .depcheck.yaml is optional.
func Init(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".depcheck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("reading config: %w", err))
	}
	return nil
}

// DefaultCacheDir returns $XDG_CACHE_HOME/depcheck or its platform
// equivalent.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "depcheck-cache")
	}
	return filepath.Join(dir, "depcheck")
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("repos", []string{})
	viper.SetDefault("repos_from_system", false)
	viper.SetDefault("arch", "")
	viper.SetDefault("output", "text")
	viper.SetDefault("jobs", 0)
	viper.SetDefault("metrics_file", "")
	viper.SetDefault("solver", "sat")
	viper.SetDefault("solver_limit", 20)
	viper.SetDefault("verbose", false)
	viper.SetDefault("cache.dir", DefaultCacheDir())
	viper.SetDefault("cache.ttl", cache.DefaultTTL)
	viper.SetDefault("cache.disabled", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, models.NewCheckError(models.ErrInvalidConfig, "", err)
	}

	if legacyExpiryApplies(cfg) {
		if v, ok := os.LookupEnv(expiryEnv); ok {
			secs, err := strconv.Atoi(v)
			if err != nil || secs <= 0 {
				return cfg, models.NewCheckError(models.ErrInvalidConfig, "",
					fmt.Errorf("%s must be a positive number of seconds, got %q", expiryEnv, v))
			}
			cfg.Cache.TTL = time.Duration(secs) * time.Second
		}
	}
	return cfg, cfg.Validate()
}

// legacyExpiryApplies reports whether nothing but the default chose the
// cache TTL.
func legacyExpiryApplies(cfg Config) bool {
	if _, ok := os.LookupEnv(EnvPrefix + "_CACHE_TTL"); ok {
		return false
	}
	return !viper.InConfig("cache.ttl") && cfg.Cache.TTL == cache.DefaultTTL
}

// Validate rejects values no run can use.
func (c Config) Validate() error {
	if c.Jobs < 0 {
		return models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("jobs must not be negative, got %d", c.Jobs))
	}
	if c.Cache.TTL <= 0 {
		return models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL))
	}
	switch c.Solver {
	case "sat", "brute-force":
	default:
		return models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("unknown solver %q (valid: sat, brute-force)", c.Solver))
	}
	if c.Solver == "brute-force" && c.SolverLimit <= 0 {
		return models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("solver_limit must be positive, got %d", c.SolverLimit))
	}
	return nil
}
