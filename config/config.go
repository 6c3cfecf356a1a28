// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for missing or placeholder required settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// PlaceholderAPIKey is the value shipped in the example config file.
const PlaceholderAPIKey = "YOUR-KEY-HERE"

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     string `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	DBName   string `yaml:"dbname" env:"DB_NAME"`
	Charset  string `yaml:"charset" env:"DB_CHARSET"`
	Table    string `yaml:"table" env:"DB_TABLE"`
}

type APIConfig struct {
	Key       string        `yaml:"key" env:"API_KEY"`
	BaseURL   string        `yaml:"base_url" env:"API_BASE_URL"`
	Retry     int           `yaml:"retry" env:"API_RETRY"`
	RetryWait time.Duration `yaml:"retry_wait" env:"API_RETRY_WAIT"`
	Delay     time.Duration `yaml:"delay" env:"API_DELAY"`
	Timeout   time.Duration `yaml:"timeout" env:"API_TIMEOUT"`
}

type MemoryConfig struct {
	LimitMB int `yaml:"limit_mb" env:"MEMORY_LIMIT_MB"`
}

type PathsConfig struct {
	ProgressFile string `yaml:"progress_file" env:"PROGRESS_FILE"`
	LogFile      string `yaml:"log_file" env:"LOG_FILE"`
}

type TraversalConfig struct {
	Municipalities          []string `yaml:"municipalities" env:"MUNICIPALITIES" envSeparator:","`
	MunicipalDistrictName   string   `yaml:"municipal_district_name" env:"MUNICIPAL_DISTRICT_NAME"`
	MunicipalDistrictSuffix string   `yaml:"municipal_district_suffix" env:"MUNICIPAL_DISTRICT_SUFFIX"`
}

type StatusConfig struct {
	Addr string `yaml:"addr" env:"STATUS_ADDR"`
}

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Memory    MemoryConfig    `yaml:"memory"`
	Paths     PathsConfig     `yaml:"paths"`
	Traversal TraversalConfig `yaml:"traversal"`
	Status    StatusConfig    `yaml:"status"`
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL"`
}

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "AREASYNC_"

// Default returns the configuration used when a key is absent.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    "3306",
			Charset: "utf8mb4",
			Table:   "area",
		},
		API: APIConfig{
			BaseURL:   "https://apis.map.qq.com/ws/district/v1/getchildren",
			Retry:     3,
			RetryWait: 2 * time.Second,
			Delay:     200 * time.Millisecond,
			Timeout:   30 * time.Second,
		},
		Memory: MemoryConfig{LimitMB: 256},
		Paths: PathsConfig{
			ProgressFile: "progress.json",
			LogFile:      "area_log.txt",
		},
		Traversal: TraversalConfig{
			Municipalities:          []string{"北京市", "上海市", "天津市", "重庆市"},
			MunicipalDistrictName:   "市辖区",
			MunicipalDistrictSuffix: "01",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads the YAML file (if any), then .env files, then AREASYNC_*
// environment overrides, and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"config.yaml", "config/config.yaml"} {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Validate reports the first missing or unusable setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	required := []struct{ key, value string }{
		{"database.host", c.Database.Host},
		{"database.port", c.Database.Port},
		{"database.user", c.Database.User},
		{"database.dbname", c.Database.DBName},
		{"database.charset", c.Database.Charset},
		{"database.table", c.Database.Table},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: missing required key '%s'", ErrInvalidConfig, r.key)
		}
	}
	if !identifierRegex.MatchString(c.Database.Table) {
		return fmt.Errorf("%w: table name '%s' is not a plain identifier", ErrInvalidConfig, c.Database.Table)
	}

	if c.API.Key == "" {
		return fmt.Errorf("%w: api.key is not set", ErrInvalidConfig)
	}
	if c.API.Key == PlaceholderAPIKey {
		return fmt.Errorf("%w: api.key still holds the placeholder value", ErrInvalidConfig)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is empty", ErrInvalidConfig)
	}
	if c.API.Retry < 1 {
		return fmt.Errorf("%w: api.retry must be at least 1, got %d", ErrInvalidConfig, c.API.Retry)
	}
	if c.API.RetryWait < 0 || c.API.Delay < 0 || c.API.Timeout < 0 {
		return fmt.Errorf("%w: api durations must not be negative", ErrInvalidConfig)
	}
	if c.Memory.LimitMB <= 0 {
		return fmt.Errorf("%w: memory.limit_mb must be positive, got %d", ErrInvalidConfig, c.Memory.LimitMB)
	}
	if c.Paths.ProgressFile == "" || c.Paths.LogFile == "" {
		return fmt.Errorf("%w: paths.progress_file and paths.log_file are required", ErrInvalidConfig)
	}
	if c.Traversal.MunicipalDistrictName == "" {
		return fmt.Errorf("%w: traversal.municipal_district_name is empty", ErrInvalidConfig)
	}
	return nil
}

// MemoryLimitBytes is the configured ceiling in bytes.
func (c *Config) MemoryLimitBytes() uint64 {
	return uint64(c.Memory.LimitMB) * 1024 * 1024
}
