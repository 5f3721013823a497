// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kairoshi/tsubame/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	ShortURL   ShortURLConfig   `json:"short_url"`
	Tracking   TrackingConfig   `json:"tracking"`
	GeoIP      GeoIPConfig      `json:"geoip"`
	Webhooks   WebhookConfig    `json:"webhooks"`
	Cache      CacheConfig      `json:"cache"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	ProxyHeader     string        `json:"proxy_header"`
	TrustedProxies  []string      `json:"trusted_proxies"`
}

// ShortURLConfig controls short code generation and redirect decisioning
type ShortURLConfig struct {
	DefaultDomain       string        `json:"default_domain"`
	DefaultCodeLength   int           `json:"default_code_length"`
	RedirectStatusCode  int           `json:"redirect_status_code"`
	RedirectCacheTTL    time.Duration `json:"redirect_cache_ttl"`
	RedirectCacheSize   int           `json:"redirect_cache_size"`
	AppendExtraPath     bool          `json:"append_extra_path"`
	MultiSegmentSlugs   bool          `json:"multi_segment_slugs"`
	TrailingSlash       bool          `json:"trailing_slash"`
	AnonymizeRemoteAddr bool          `json:"anonymize_remote_addr"`
}

// NormalizedRedirectStatus returns the configured redirect status clamped to
// the permanent/temporary pair; anything else falls back to 302
func (c ShortURLConfig) NormalizedRedirectStatus() int {
	if c.RedirectStatusCode == 301 || c.RedirectStatusCode == 302 {
		return c.RedirectStatusCode
	}
	return 302
}

// TrackingConfig controls visit persistence and the async side channel
type TrackingConfig struct {
	VisitsCountSlots  int      `json:"visits_count_slots"`
	BotUserAgents     []string `json:"bot_user_agents"`
	DispatchBuffer    int      `json:"dispatch_buffer"`
	DispatchWorkers   int      `json:"dispatch_workers"`
	DisableTracking   bool     `json:"disable_tracking"`
	DisableIPTracking bool     `json:"disable_ip_tracking"`
}

type GeoIPConfig struct {
	Enabled  bool   `json:"enabled"`
	MMDBPath string `json:"mmdb_path"`
}

type WebhookConfig struct {
	URLs       []string      `json:"urls"`
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"` // memory | redis
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	HealthCheck time.Duration `json:"health_check"`
}

type LoggingConfig struct {
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
	ToStderr   bool   `json:"to_stderr"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
}

// LoadProductionConfig loads configuration from environment variables,
// falling back to a local .env file for development setups
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "tsubame"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", ""),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{}),
		},
		ShortURL: ShortURLConfig{
			DefaultDomain:       getEnvString("DEFAULT_DOMAIN", ""),
			DefaultCodeLength:   getEnvInt("DEFAULT_SHORT_CODE_LENGTH", utils.DefaultShortCodeLength),
			RedirectStatusCode:  getEnvInt("REDIRECT_STATUS_CODE", 302),
			RedirectCacheTTL:    getEnvDuration("REDIRECT_CACHE_TTL", utils.DefaultRedirectCacheTTL),
			RedirectCacheSize:   getEnvInt("REDIRECT_CACHE_SIZE", 10000),
			AppendExtraPath:     getEnvBool("REDIRECT_APPEND_EXTRA_PATH", false),
			MultiSegmentSlugs:   getEnvBool("MULTI_SEGMENT_SLUGS_ENABLED", false),
			TrailingSlash:       getEnvBool("SHORT_URL_TRAILING_SLASH", false),
			AnonymizeRemoteAddr: getEnvBool("ANONYMIZE_REMOTE_ADDR", true),
		},
		Tracking: TrackingConfig{
			VisitsCountSlots:  getEnvInt("VISITS_COUNT_SLOTS", utils.DefaultVisitsCountSlots),
			BotUserAgents:     getEnvStringSlice("BOT_USER_AGENTS", []string{"bot", "crawl", "spider", "curl", "wget", "facebookexternalhit", "preview"}),
			DispatchBuffer:    getEnvInt("TRACKING_DISPATCH_BUFFER", 1024),
			DispatchWorkers:   getEnvInt("TRACKING_DISPATCH_WORKERS", 4),
			DisableTracking:   getEnvBool("DISABLE_TRACKING", false),
			DisableIPTracking: getEnvBool("DISABLE_IP_TRACKING", false),
		},
		GeoIP: GeoIPConfig{
			Enabled:  getEnvBool("GEOIP_ENABLED", false),
			MMDBPath: getEnvString("GEOIP_MMDB_PATH", "static/GeoLite2-City.mmdb"),
		},
		Webhooks: WebhookConfig{
			URLs:       getEnvStringSlice("VISIT_WEBHOOK_URLS", []string{}),
			Timeout:    getEnvDuration("VISIT_WEBHOOK_TIMEOUT", 10*time.Second),
			RetryCount: getEnvInt("VISIT_WEBHOOK_RETRY_COUNT", 1),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "memory"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "tsubame:"),
			HealthCheck: getEnvDuration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Logging: LoggingConfig{
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/tsubame/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
			ToStderr:   getEnvBool("LOG_TO_STDERR", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	if cfg.ShortURL.DefaultCodeLength < utils.MinShortCodeLength {
		errors = append(errors, fmt.Sprintf("DEFAULT_SHORT_CODE_LENGTH must be at least %d", utils.MinShortCodeLength))
	}
	if cfg.ShortURL.RedirectCacheTTL < 0 {
		errors = append(errors, "REDIRECT_CACHE_TTL must not be negative")
	}
	if cfg.ShortURL.RedirectCacheSize <= 0 {
		errors = append(errors, "REDIRECT_CACHE_SIZE must be positive")
	}

	if cfg.Tracking.VisitsCountSlots <= 0 {
		errors = append(errors, "VISITS_COUNT_SLOTS must be positive")
	}
	if cfg.Tracking.DispatchWorkers <= 0 {
		errors = append(errors, "TRACKING_DISPATCH_WORKERS must be positive")
	}

	if cfg.Webhooks.Timeout <= 0 {
		errors = append(errors, "VISIT_WEBHOOK_TIMEOUT must be positive")
	}
	if cfg.Webhooks.RetryCount < 0 {
		errors = append(errors, "VISIT_WEBHOOK_RETRY_COUNT must not be negative")
	}

	if cfg.GeoIP.Enabled && cfg.GeoIP.MMDBPath == "" {
		errors = append(errors, "GEOIP_MMDB_PATH is required when geolocation is enabled")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Provider != "memory" && cfg.Cache.Provider != "redis" {
			errors = append(errors, "CACHE_PROVIDER must be memory or redis")
		}
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache provider is redis")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
