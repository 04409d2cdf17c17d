// Package config loads application configuration from environment variables
// (and a .env file when one is present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	Port        string // HTTP port to listen on
	StoreDriver string // mysql or sqlite
	DBUser      string // database username
	DBPass      string // database password (optional)
	DBHost      string // database host address
	DBPort      string // database port number
	DBName      string // database name
	SQLitePath  string // database file when StoreDriver is sqlite

	JWTSecret  string        // secret used to sign access tokens
	AccessTTL  time.Duration // ACCESS_TOKEN_TTL_MIN
	RefreshTTL time.Duration // REFRESH_TOKEN_TTL_DAYS
	ResetTTL   time.Duration // RESET_TOKEN_TTL_MIN
	BcryptCost int

	LoginURL         string // where a signed-out or disabled user is sent
	DefaultPageURL   string // where a user without the required role is sent
	PublicBaseURL    string // origin used to build links in emails
	ResetURL         string // password reset page
	ResetContinueURL string // page the reset flow returns to

	AMQPURL         string // RabbitMQ, required when MAIL_TRANSPORT=queue
	CollectionsFile string

	Mail      MailConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// Dev reports whether the process runs in the development environment.
func (c Config) Dev() bool { return c.Env == "dev" || c.Env == "development" }

// Load reads a .env file if present and then the environment.  Every
// missing required variable is reported in one error.
func Load() (Config, error) {
	_ = godotenv.Load()

	e := &env{}
	cfg := Config{
		Env:         e.must("APP_ENV"),
		Port:        e.must("APP_PORT"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		JWTSecret:   e.must("JWT_SECRET"),
		AccessTTL:   time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		RefreshTTL:  time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
		ResetTTL:    time.Duration(envInt("RESET_TOKEN_TTL_MIN", 60)) * time.Minute,
		BcryptCost:  envInt("BCRYPT_COST", 10),

		LoginURL:       envStr("LOGIN_URL", "/login_main.html"),
		DefaultPageURL: envStr("DEFAULT_PAGE_URL", "/index.html"),
		PublicBaseURL:  strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		AMQPURL:         envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		CollectionsFile: envStr("COLLECTIONS_FILE", "collections.yaml"),
	}
	cfg.ResetURL = envStr("RESET_URL", cfg.PublicBaseURL+"/reset_password.html")
	cfg.ResetContinueURL = envStr("RESET_CONTINUE_URL", cfg.PublicBaseURL+cfg.LoginURL)

	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = e.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.must("DB_PORT")
		cfg.DBName = e.must("DB_NAME")
	case DriverSQLite:
		cfg.SQLitePath = envStr("SQLITE_PATH", "estock.db")
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if err := e.err(); err != nil {
		return Config{}, err
	}

	mail, err := LoadMailConfig()
	if err != nil {
		return Config{}, err
	}
	if mail.Transport == TransportQueue && cfg.AMQPURL == "" {
		return Config{}, fmt.Errorf("MAIL_TRANSPORT=queue requires RABBITMQ_URL")
	}
	cfg.Mail = mail
	cfg.Redis = LoadRedisConfig()
	cfg.RateLimit = LoadRateLimitConfig()
	cfg.Cache = LoadCacheConfig()
	return cfg, nil
}

// env collects the names of required variables that are unset.
type env struct {
	missing []string
}

// must retrieves the value of a required environment variable.
func (e *env) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *env) err() error {
	if len(e.missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required env var: %s", strings.Join(e.missing, ", "))
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
