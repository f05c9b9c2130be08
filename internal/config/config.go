// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
)

// Storage backends for the local copy of the records.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	DataDir     string `json:"dataDir" env:"FAMLEDGER_DATA_DIR"` // Always absolute after Load
	Port        int    `json:"port" env:"PORT"`
	LogLevel    string `json:"logLevel" env:"LOG_LEVEL"`
	LogPretty   bool   `json:"logPretty" env:"LOG_PRETTY"`
	DevMode     bool   `json:"devMode" env:"DEV_MODE"`
	Environment string `json:"environment" env:"APP_ENV"`

	StorageBackend string `json:"storageBackend" env:"STORAGE_BACKEND"` // json or sqlite
	SQLiteDriver   string `json:"sqliteDriver" env:"SQLITE_DRIVER"`     // sqlite (modernc) or sqlite3 (cgo)
	LocalOnly      bool   `json:"localOnly" env:"LOCAL_ONLY"`

	// GitHubToken is the explicitly configured token (config file or ejson
	// secrets). The GITHUB_TOKEN environment variable is consulted separately
	// by the credential resolver so the precedence stays visible.
	GitHubToken  string       `json:"githubToken"`
	SecretCipher string       `json:"secretCipher" env:"SECRET_CIPHER"`
	GitHub       GitHubConfig `json:"github"`

	Members        []string `json:"members" env:"MEMBERS" envSeparator:","`
	PaymentMethods []string `json:"paymentMethods" env:"PAYMENT_METHODS" envSeparator:","`
	CashTag        string   `json:"cashTag" env:"CASH_TAG"`

	MaxBackups      int           `json:"maxBackups" env:"MAX_BACKUPS"`
	BackupSchedule  string        `json:"backupSchedule" env:"BACKUP_SCHEDULE"`
	OffsiteSchedule string        `json:"offsiteSchedule" env:"OFFSITE_SCHEDULE"`
	Offsite         OffsiteConfig `json:"offsite"`

	RateLimit float64 `json:"rateLimit" env:"RATE_LIMIT"` // requests per second per client
	RateBurst int     `json:"rateBurst" env:"RATE_BURST"`
}

// GitHubConfig describes the repository file the records are mirrored to.
type GitHubConfig struct {
	Owner          string `json:"owner" env:"GITHUB_OWNER"`
	Repo           string `json:"repo" env:"GITHUB_REPO"`
	Branch         string `json:"branch" env:"GITHUB_BRANCH"`
	DataPath       string `json:"dataPath" env:"GITHUB_DATA_PATH"`
	SecretPath     string `json:"secretPath" env:"GITHUB_SECRET_PATH"`
	APIURL         string `json:"apiUrl" env:"GITHUB_API_URL"`
	TimeoutSeconds int    `json:"timeoutSeconds" env:"GITHUB_TIMEOUT_SECONDS"`
}

// Timeout returns the per-request timeout for remote calls.
func (g GitHubConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Configured reports whether a remote repository is set up at all.
func (g GitHubConfig) Configured() bool {
	return g.Owner != "" && g.Repo != ""
}

// OffsiteConfig holds the optional offsite backup target.
type OffsiteConfig struct {
	Provider        string `json:"provider" env:"OFFSITE_PROVIDER"` // "", s3 or gcs
	Bucket          string `json:"bucket" env:"OFFSITE_BUCKET"`
	Endpoint        string `json:"endpoint" env:"OFFSITE_ENDPOINT"` // S3-compatible endpoint (e.g. R2)
	Region          string `json:"region" env:"OFFSITE_REGION"`
	AccessKeyID     string `json:"accessKeyId" env:"OFFSITE_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secretAccessKey" env:"OFFSITE_SECRET_ACCESS_KEY"`
	Prefix          string `json:"prefix" env:"OFFSITE_PREFIX"`
	CredentialsFile string `json:"credentialsFile" env:"OFFSITE_CREDENTIALS_FILE"` // GCS service account JSON
	RetentionDays   int    `json:"retentionDays" env:"OFFSITE_RETENTION_DAYS"`
}

// Enabled reports whether an offsite target is configured.
func (o OffsiteConfig) Enabled() bool {
	return o.Provider != "" && o.Bucket != ""
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		DataDir:         "./data",
		Port:            3001,
		LogLevel:        "info",
		Environment:     "development",
		StorageBackend:  BackendJSON,
		SQLiteDriver:    "sqlite",
		SecretCipher:    "aes-256-gcm",
		CashTag:         "現金",
		MaxBackups:      50,
		BackupSchedule:  "@every 5m",
		OffsiteSchedule: "@daily",
		RateLimit:       10,
		RateBurst:       30,
		GitHub: GitHubConfig{
			Branch:         "main",
			DataPath:       "data/data.json",
			SecretPath:     "secrets/github_token.enc",
			APIURL:         "https://api.github.com",
			TimeoutSeconds: 8,
		},
		Offsite: OffsiteConfig{
			Region:        "auto",
			Prefix:        "famledger-backup-",
			RetentionDays: 30,
		},
	}
}

// Load reads configuration from an optional YAML file, the environment and
// an optional ejson secrets file, then fills anything left unset from Defaults.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}

	if path := os.Getenv("FAMLEDGER_CONFIG"); path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path := os.Getenv("FAMLEDGER_SECRETS"); path != "" {
		secrets, err := ReadSecrets(path, os.Getenv("EJSON_KEYDIR"), os.Getenv("EJSON_PRIVATE_KEY"))
		if err != nil {
			return nil, err
		}
		secrets.apply(cfg)
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	var problems []string

	switch c.StorageBackend {
	case BackendJSON, BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("storage backend %q must be %q or %q", c.StorageBackend, BackendJSON, BackendSQLite))
	}
	switch c.SQLiteDriver {
	case "sqlite", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("sqlite driver %q must be sqlite or sqlite3", c.SQLiteDriver))
	}
	switch c.SecretCipher {
	case "aes-256-gcm", "xchacha20-poly1305":
	default:
		problems = append(problems, fmt.Sprintf("secret cipher %q is not supported", c.SecretCipher))
	}
	switch c.Offsite.Provider {
	case "", "s3", "gcs":
	default:
		problems = append(problems, fmt.Sprintf("offsite provider %q must be s3 or gcs", c.Offsite.Provider))
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.MaxBackups < 1 {
		problems = append(problems, "maxBackups must be at least 1")
	}
	if c.GitHub.TimeoutSeconds < 1 {
		problems = append(problems, "github timeout must be at least one second")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
