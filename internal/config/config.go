package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"marketpulse"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"marketpulse"`

	// Queue worker
	WorkerID     string `envconfig:"WORKER_ID"`
	JobType      string `envconfig:"JOB_TYPE" default:"search"`
	LockSeconds  int    `envconfig:"LOCK_SECONDS" default:"120"`
	MaxAttempts  int    `envconfig:"MAX_ATTEMPTS" default:"6"`
	PollSeconds  int    `envconfig:"POLL_SECONDS" default:"5"`
	EnableWorker bool   `envconfig:"ENABLE_WORKER" default:"true"`

	// Retry / access-denial fast fail
	BackoffBaseSeconds int     `envconfig:"BACKOFF_BASE_SECONDS" default:"1"`
	BackoffMultiplier  float64 `envconfig:"BACKOFF_MULTIPLIER" default:"2"`
	BackoffMaxSeconds  int     `envconfig:"BACKOFF_MAX_SECONDS" default:"300"`
	BackoffJitter      float64 `envconfig:"BACKOFF_JITTER" default:"0.2"`
	DenialMaxAttempts  int     `envconfig:"DENIAL_MAX_ATTEMPTS" default:"2"`
	DenialDelaySeconds int     `envconfig:"DENIAL_DELAY_SECONDS" default:"2"`

	// Circuit breaker
	BreakerFailureThreshold int `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoverySeconds  int `envconfig:"BREAKER_RECOVERY_SECONDS" default:"60"`

	// Upstreams
	UpstreamTimeoutSeconds int    `envconfig:"UPSTREAM_TIMEOUT_SECONDS" default:"25"`
	MLBase                 string `envconfig:"ML_BASE" default:"https://api.mercadolibre.com"`
	MLSiteID               string `envconfig:"ML_SITE_ID" default:"MLM"`
	PublishBase            string `envconfig:"PUBLISH_BASE"`
	FrankfurterBase        string `envconfig:"FRANKFURTER_BASE" default:"https://api.frankfurter.dev/v1"`

	// Listing sync fan-out
	MLMarket          string `envconfig:"ML_MARKET" default:"MX"`
	MLKeywords        string `envconfig:"ML_KEYWORDS"`
	MLCategories      string `envconfig:"ML_CATEGORIES"`
	MLSellerIDs       string `envconfig:"ML_SELLER_IDS"`
	MLLimit           int    `envconfig:"ML_LIMIT" default:"50"`
	MLMaxPages        int    `envconfig:"ML_MAX_PAGES" default:"10"`
	MLCallItemsDetail bool   `envconfig:"ML_CALL_ITEMS_DETAIL" default:"true"`
	ListingSyncHours  int    `envconfig:"LISTING_SYNC_HOURS" default:"6"`

	// Exchange rates
	FXBaseCurrency string `envconfig:"FX_BASE_CURRENCY" default:"MXN"`
	FXSymbols      string `envconfig:"FX_SYMBOLS" default:"USD"`
	FXSyncHours    int    `envconfig:"FX_SYNC_HOURS" default:"24"`

	// NSQ
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQLookupd string `envconfig:"NSQLOOKUPD_HOST"`

	// Ops HTTP surface
	EnableAPI bool   `envconfig:"ENABLE_API" default:"true"`
	APIAddr   string `envconfig:"API_ADDR" default:":8081"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.JobType == "" {
		return fmt.Errorf("%w: JOB_TYPE", ErrMissingRequired)
	}
	if c.LockSeconds <= 0 {
		return fmt.Errorf("LOCK_SECONDS must be positive, got %d", c.LockSeconds)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	// Ticker intervals panic at zero, so reject them before startup.
	if c.PollSeconds <= 0 {
		return fmt.Errorf("POLL_SECONDS must be positive, got %d", c.PollSeconds)
	}
	if c.FXSyncHours <= 0 {
		return fmt.Errorf("FX_SYNC_HOURS must be positive, got %d", c.FXSyncHours)
	}
	if c.ListingSyncHours <= 0 {
		return fmt.Errorf("LISTING_SYNC_HOURS must be positive, got %d", c.ListingSyncHours)
	}
	if c.DenialMaxAttempts > c.MaxAttempts {
		return fmt.Errorf("DENIAL_MAX_ATTEMPTS (%d) cannot exceed MAX_ATTEMPTS (%d)", c.DenialMaxAttempts, c.MaxAttempts)
	}
	return nil
}

// CSV splits a comma-separated env value into trimmed non-empty parts.
func CSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
