// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverAzTables = "aztables"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver   string // sqlite, badger or aztables (default: sqlite)
	DataPath string // Local data directory, also holds the auth key

	AzureConnectionString string // Required for aztables
	AzureTable            string // default: tasklibraries
}

// CacheConfig configures the optional Redis share snapshot cache.
type CacheConfig struct {
	RedisAddr     string // Empty disables the cache
	RedisPassword string
	RedisDB       int
	ShareTTL      time.Duration // default: 5m
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port               string        // Server port (default: 8080)
	ReadTimeout        time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout       time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout        time.Duration // HTTP idle timeout (default: 60s)
	RequestTimeout     time.Duration // Per-request deadline for store work (default: 10s)
	CORSAllowedOrigins []string      // default: *
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Hex-encoded PASETO v4 symmetric key. Loaded from the data path when empty.
	AccessTokenKey      string
	AccessTokenDuration time.Duration // e.g., 24h
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	PerMinute int // default: 120
	Burst     int // default: 30
}

// Flags holds the command-line flags bound by BindFlags.
type Flags struct {
	env      *string
	logLevel *string
	dataPath *string

	driver       *string
	azureConn    *string
	azureTable   *string
	redisAddr    *string
	redisDB      *string
	shareTTL     *string
	port         *string
	readTimeout  *string
	writeTimeout *string
	idleTimeout  *string
	reqTimeout   *string
	corsOrigins  *string

	accessTokenKey      *string
	accessTokenDuration *string
	rateLimitPerMinute  *string
	rateLimitBurst      *string

	envFile *string
}

// BindFlags registers the configuration flags on fs. Commands can add their
// own flags to the same set before parsing.
func BindFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		env:      fs.String("env", "", "Environment (development, staging, production)"),
		logLevel: fs.String("log-level", "", "Log level (debug, info, warn, error)"),
		dataPath: fs.String("data-path", "", "Directory for local data and the auth key"),

		driver:     fs.String("storage-driver", "", "Record store: sqlite, badger or aztables (default: sqlite)"),
		azureConn:  fs.String("azure-tables-connection-string", "", "Azure Tables connection string"),
		azureTable: fs.String("azure-tables-table", "", "Azure Tables table name (default: tasklibraries)"),

		redisAddr: fs.String("redis-addr", "", "Redis address for the share cache (empty disables it)"),
		redisDB:   fs.String("redis-db", "", "Redis database number (default: 0)"),
		shareTTL:  fs.String("share-cache-ttl", "", "Share snapshot cache lifetime (default: 5m)"),

		port:         fs.String("port", "", "Server port (default: 8080)"),
		readTimeout:  fs.String("read-timeout", "", "HTTP read timeout (default: 15s)"),
		writeTimeout: fs.String("write-timeout", "", "HTTP write timeout (default: 15s)"),
		idleTimeout:  fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)"),
		reqTimeout:   fs.String("request-timeout", "", "Per-request deadline (default: 10s)"),
		corsOrigins:  fs.String("cors-allowed-origins", "", "Comma-separated CORS origins (default: *)"),

		accessTokenKey:      fs.String("access-token-key", "", "Hex PASETO v4 key (default: generated into data path)"),
		accessTokenDuration: fs.String("access-token-duration", "", "Access token lifetime (default: 24h)"),
		rateLimitPerMinute:  fs.String("rate-limit-per-minute", "", "Requests per minute per client (default: 120)"),
		rateLimitBurst:      fs.String("rate-limit-burst", "", "Request burst per client (default: 30)"),

		envFile: fs.String("env-file", ".env", "Path to .env file"),
	}
}

// LoadConfig parses the process arguments and loads configuration.
func LoadConfig() (*Config, error) {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)
	flags := BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	return flags.Load()
}

// Load builds the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func (f *Flags) Load() (*Config, error) {
	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*f.envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*f.env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*f.logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Driver:                strings.ToLower(getConfigValue(*f.driver, "STORAGE_DRIVER", DriverSQLite)),
			DataPath:              getConfigValue(*f.dataPath, "DATA_PATH", ""),
			AzureConnectionString: getConfigValue(*f.azureConn, "AZURE_TABLES_CONNECTION_STRING", ""),
			AzureTable:            getConfigValue(*f.azureTable, "AZURE_TABLES_TABLE", "tasklibraries"),
		},
		Cache: CacheConfig{
			RedisAddr:     getConfigValue(*f.redisAddr, "REDIS_ADDR", ""),
			RedisPassword: getConfigValue("", "REDIS_PASSWORD", ""),
			RedisDB:       getIntConfigValue(*f.redisDB, "REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:               getConfigValue(*f.port, "SERVER_PORT", "8080"),
			CORSAllowedOrigins: splitList(getConfigValue(*f.corsOrigins, "CORS_ALLOWED_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			AccessTokenKey: getConfigValue(*f.accessTokenKey, "ACCESS_TOKEN_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getIntConfigValue(*f.rateLimitPerMinute, "RATE_LIMIT_PER_MINUTE", 120),
			Burst:     getIntConfigValue(*f.rateLimitBurst, "RATE_LIMIT_BURST", 30),
		},
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"share cache TTL", getConfigValue(*f.shareTTL, "SHARE_CACHE_TTL", "5m"), &cfg.Cache.ShareTTL},
		{"read timeout", getConfigValue(*f.readTimeout, "SERVER_READ_TIMEOUT", "15s"), &cfg.Server.ReadTimeout},
		{"write timeout", getConfigValue(*f.writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"), &cfg.Server.WriteTimeout},
		{"idle timeout", getConfigValue(*f.idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"), &cfg.Server.IdleTimeout},
		{"request timeout", getConfigValue(*f.reqTimeout, "SERVER_REQUEST_TIMEOUT", "10s"), &cfg.Server.RequestTimeout},
		{"access token duration", getConfigValue(*f.accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h"), &cfg.Auth.AccessTokenDuration},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverBadger:
	case DriverAzTables:
		if c.Storage.AzureConnectionString == "" {
			return errors.New("AZURE_TABLES_CONNECTION_STRING is required for the aztables driver")
		}
		if c.Storage.AzureTable == "" {
			return errors.New("AZURE_TABLES_TABLE cannot be empty")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be sqlite, badger, or aztables)", c.Storage.Driver)
	}

	if c.Cache.Enabled() {
		if c.Cache.ShareTTL <= 0 {
			return errors.New("share cache TTL must be positive")
		}
		if c.Cache.RedisDB < 0 {
			return fmt.Errorf("invalid redis db: %d", c.Cache.RedisDB)
		}
	}

	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit and burst must be positive")
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data path to ~/TaskSync/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "TaskSync", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
