package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is resolved in three layers: defaults, then the optional YAML file
// named by CONFIG_FILE, then the environment (including .env).
type Config struct {
	Port                      string `yaml:"port"`
	AllowedOrigin             string `yaml:"allowed_origin"`
	APIBaseURL                string `yaml:"api_base_url"`
	RequestTimeoutSeconds     int    `yaml:"request_timeout_seconds"`
	DatabaseURL               string `yaml:"database_url"`
	MongoURI                  string `yaml:"mongo_uri"`
	MongoDatabase             string `yaml:"mongo_database"`
	RedisAddr                 string `yaml:"redis_addr"`
	RedisPassword             string `yaml:"redis_password"`
	RedisDB                   int    `yaml:"redis_db"`
	SnapshotTTLSeconds        int    `yaml:"snapshot_ttl_seconds"`
	ServiceToken              string `yaml:"service_token"`
	SafetyStockRefreshMinutes int    `yaml:"safety_stock_refresh_minutes"`
	LenientPurchaseComplete   bool   `yaml:"lenient_purchase_complete"`
	LogFormat                 string `yaml:"log_format"`
	DefaultTerminalID         string `yaml:"default_terminal_id"`
	MaxTerminals              int    `yaml:"max_terminals"`
}

func defaults() Config {
	return Config{
		Port:                      "8080",
		AllowedOrigin:             "http://127.0.0.1:3000",
		RequestTimeoutSeconds:     30,
		MongoDatabase:             "posagent",
		SnapshotTTLSeconds:        300,
		SafetyStockRefreshMinutes: 5,
		LogFormat:                 "json",
		MaxTerminals:              64,
	}
}

func Load() (Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.APIBaseURL = strings.TrimSpace(getEnv("API_BASE_URL", cfg.APIBaseURL))
	cfg.RequestTimeoutSeconds = getEnvInt("REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeoutSeconds, 1)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB, 0)
	cfg.SnapshotTTLSeconds = getEnvInt("SNAPSHOT_TTL_SECONDS", cfg.SnapshotTTLSeconds, 1)
	cfg.ServiceToken = strings.TrimSpace(getEnv("SERVICE_TOKEN", cfg.ServiceToken))
	cfg.SafetyStockRefreshMinutes = getEnvInt("SAFETY_STOCK_REFRESH_MINUTES", cfg.SafetyStockRefreshMinutes, 1)
	cfg.LenientPurchaseComplete = getEnvBool("LENIENT_PURCHASE_COMPLETE", cfg.LenientPurchaseComplete)
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	cfg.DefaultTerminalID = strings.TrimSpace(getEnv("DEFAULT_TERMINAL_ID", cfg.DefaultTerminalID))
	cfg.MaxTerminals = getEnvInt("MAX_TERMINALS", cfg.MaxTerminals, 1)

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.SafetyStockRefreshMinutes) * time.Minute
}

// loadDotEnv never overrides variables already present in the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
