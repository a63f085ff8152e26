package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
	"github.com/i474232898/load-profile-aggregation/internal/logging"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

type AppConfig struct {
	// CacheDir is the root of the on-disk record cache.
	CacheDir string `koanf:"cache_dir" validate:"required"`

	// BaseURL is where daily records and yearly archives are published.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// HTTPTimeout bounds a single HTTP request; FetchTimeout bounds a whole fetch with retries.
	HTTPTimeout  time.Duration `koanf:"http_timeout" validate:"gt=0"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gte=0"`

	FetchRetries    int           `koanf:"fetch_retries" validate:"gte=0"`
	FetchBackoff    time.Duration `koanf:"fetch_backoff" validate:"gt=0"`
	FetchBackoffMax time.Duration `koanf:"fetch_backoff_max" validate:"gte=0"`
	Workers         int           `koanf:"workers" validate:"gte=1,lte=32"`
	LabelMode       string        `koanf:"label_mode" validate:"oneof=start end"`
	DateLayout      string        `koanf:"date_layout" validate:"required"`
	MaxRangeDays    int           `koanf:"max_range_days" validate:"gte=1"`
	// RefreshInterval 0 disables the refresh scheduler.
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gte=0"`
	RefreshDaysBack int           `koanf:"refresh_days_back" validate:"gte=0"`
	Port            string        `koanf:"port" validate:"required,numeric"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format" validate:"omitempty,oneof=json console"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		CacheDir:        "__dlpcache__",
		BaseURL:         loadprofile.DefaultBaseURL,
		HTTPTimeout:     30 * time.Second,
		FetchTimeout:    2 * time.Minute,
		FetchRetries:    3,
		FetchBackoff:    500 * time.Millisecond,
		FetchBackoffMax: 5 * time.Second,
		Workers:         1,
		LabelMode:       string(loadprofile.LabelIntervalStart),
		DateLayout:      "1/2/06",
		MaxRangeDays:    366,
		RefreshInterval: 6 * time.Hour,
		RefreshDaysBack: 1,
		Port:            "8080",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

var validate = validator.New()

// Load reads configuration: defaults, then an optional YAML file, then environment variables
// (a .env file is loaded into the environment first).
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Err(err).Msg("no .env file loaded")
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("DLP_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Mode returns the parsed label mode.
func (c *AppConfig) Mode() loadprofile.LabelMode {
	mode, err := loadprofile.ParseLabelMode(c.LabelMode)
	if err != nil {
		return loadprofile.LabelIntervalStart
	}
	return mode
}

// envTransformFunc maps DLP_CACHE_DIR to cache_dir.
func envTransformFunc(key string) string {
	return strings.ToLower(strings.TrimPrefix(key, "DLP_"))
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
