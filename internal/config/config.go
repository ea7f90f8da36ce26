package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string

	StorageBackend   string
	StorageKey       string
	StorageBudget    int
	StorageNearRatio float64
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	AppHost          string
	DemoInvoiceCount int
	DemoSeed         int64

	ConversionRate          float64
	PriorityHighThreshold   float64
	PriorityMediumThreshold float64

	GeocoderEnabled      bool
	GeocoderBaseURL      string
	GeocoderRateLimitRPS int
	GeocoderTimeoutMs    int

	LogLevel  string
	LogFormat string

	HTTPAddr            string
	BaselineIntervalSec int
	BaselineAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "reconquest.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", "sqlite")),
		StorageKey:       getEnv("STORAGE_KEY", "soprema_invoices"),
		StorageBudget:    getEnvInt("STORAGE_BUDGET_BYTES", 5*1024*1024),
		StorageNearRatio: getEnvFloat("STORAGE_NEAR_RATIO", 0.9),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),

		AppHost:          getEnv("APP_HOST", "localhost"),
		DemoInvoiceCount: getEnvInt("DEMO_INVOICE_COUNT", 24),
		DemoSeed:         int64(getEnvInt("DEMO_SEED", 42)),

		ConversionRate:          getEnvFloat("RECONQUEST_CONVERSION_RATE", 0.70),
		PriorityHighThreshold:   getEnvFloat("PRIORITY_HIGH_THRESHOLD", 50000),
		PriorityMediumThreshold: getEnvFloat("PRIORITY_MEDIUM_THRESHOLD", 20000),

		GeocoderEnabled:      getEnvBool("GEOCODER_ENABLED", true),
		GeocoderBaseURL:      getEnv("GEOCODER_BASE_URL", "https://api-adresse.data.gouv.fr"),
		GeocoderRateLimitRPS: getEnvInt("GEOCODER_RATE_LIMIT_RPS", 10),
		GeocoderTimeoutMs:    getEnvInt("GEOCODER_TIMEOUT_MS", 5000),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		BaselineIntervalSec: getEnvInt("BASELINE_INTERVAL_SEC", 86400),
		BaselineAutoExport:  getEnvBool("BASELINE_AUTO_EXPORT", false),
	}

	if cfg.PriorityMediumThreshold > cfg.PriorityHighThreshold {
		return Config{}, fmt.Errorf("PRIORITY_MEDIUM_THRESHOLD (%v) above PRIORITY_HIGH_THRESHOLD (%v)", cfg.PriorityMediumThreshold, cfg.PriorityHighThreshold)
	}
	if cfg.StorageBackend == "redis" {
		if err := cfg.Require("REDIS_ADDR", cfg.RedisAddr); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// IsLocalDeployment reports whether the process runs on a developer machine,
// in which case an empty store is left empty instead of seeded with demo data.
func (c Config) IsLocalDeployment() bool {
	host := strings.ToLower(strings.TrimSpace(c.AppHost))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	switch host {
	case "", "localhost", "0.0.0.0":
		return true
	}
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
