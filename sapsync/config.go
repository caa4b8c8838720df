package sapsync

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the SAP connection surface. It is loaded once from env and
// passed by value; components never read process state directly.
type Config struct {
	// Enabled defaults to true. When false every integration call succeeds
	// immediately without touching the network.
	Enabled      bool
	BaseURL      string
	Username     string
	Password     string
	TimeoutMs    uint
	PageSize     uint
	UpdatedAfter *time.Time
	// CronExpression schedules the reverse sync in the worker binary.
	CronExpression string
}

const (
	defaultTimeoutMs = 5000
	defaultPageSize  = 100
)

func LoadConfig() Config {
	cfg := Config{
		Enabled:        envBoolDefault("SAP_SYNC_ENABLED", true),
		BaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("SAP_BASE_URL")), "/"),
		Username:       strings.TrimSpace(os.Getenv("SAP_USERNAME")),
		Password:       os.Getenv("SAP_PASSWORD"),
		TimeoutMs:      uintFromEnv("SAP_TIMEOUT_MS", defaultTimeoutMs),
		PageSize:       uintFromEnv("SAP_PAGE_SIZE", defaultPageSize),
		CronExpression: strings.TrimSpace(os.Getenv("SAP_SYNC_CRON")),
	}
	if raw := strings.TrimSpace(os.Getenv("SAP_UPDATED_AFTER")); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			cfg.UpdatedAfter = &t
		}
	}
	return cfg
}

// Configured reports whether the connection settings required for network
// activity are all present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.Username != "" && c.Password != ""
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutMs == 0 {
		return defaultTimeoutMs * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c Config) EffectivePageSize() int {
	if c.PageSize == 0 {
		return defaultPageSize
	}
	return int(c.PageSize)
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

func uintFromEnv(key string, def uint) uint {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return def
	}
	return uint(n)
}
