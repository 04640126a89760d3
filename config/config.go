package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds all application configuration loaded from environment variables
// and the source rules file.
type Config struct {
	Filter FilterConfig

	CacheFile     string `validate:"required"`
	OutputFile    string `validate:"required"`
	CSVOutputPath string
	LockTTL       time.Duration `validate:"gt=0"`

	MaxConcurrency int           `validate:"gte=1,lte=16"`
	RateLimitMs    int           `validate:"gte=0"`
	MaxRetries     int           `validate:"gte=0,lte=10"`
	FetchTimeout   time.Duration `validate:"gt=0"`
	UserAgent      string        `validate:"required"`
	ChromeBin      string

	Email        EmailConfig
	DashboardURL string `validate:"omitempty,url"`

	Postgres PostgresConfig

	LogLevel string `validate:"oneof=debug info warn warning error"`
	LogJSON  bool

	SourcesFile string
	Sources     []Source `validate:"required,min=1,dive"`
}

// FilterConfig is the target criteria applied to every extracted listing.
// Empty lists and zero bounds are inactive.
type FilterConfig struct {
	Towers       []int `validate:"dive,gte=1,lte=99"`
	MaxSize      int   `validate:"gte=0"`
	Rooms        []int `validate:"dive,gte=1,lte=9"`
	MinPrice     int64 `validate:"gte=0"`
	MaxPrice     int64 `validate:"gte=0"`
	AllowUnknown bool
}

// EmailConfig holds SMTP credentials. Missing sender, password or recipients
// disables sending without failing the run.
type EmailConfig struct {
	Sender     string `validate:"omitempty,email"`
	Password   string
	Recipients []string `validate:"dive,email"`
	SMTPHost   string   `validate:"required"`
	SMTPPort   int      `validate:"gte=1,lte=65535"`
}

// Configured reports whether enough is set to attempt a send.
func (e EmailConfig) Configured() bool {
	return e.Sender != "" && e.Password != "" && len(e.Recipients) > 0
}

// PostgresConfig configures the optional listing mirror.
type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// Load reads envFile (".env" when empty; a missing file is not an error),
// then the environment, then the source rules, and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		Filter: FilterConfig{
			Towers:       getEnvIntList("TARGET_TOWERS", []int{8, 9, 10, 11, 12, 13, 15, 16, 18}),
			MaxSize:      getEnvInt("MAX_SIZE", 600),
			Rooms:        getEnvIntList("TARGET_ROOMS", []int{1, 2}),
			MinPrice:     int64(getEnvInt("MIN_PRICE", 0)),
			MaxPrice:     int64(getEnvInt("MAX_PRICE", 0)),
			AllowUnknown: getEnvBool("FILTER_ALLOW_UNKNOWN", false),
		},

		CacheFile:     getEnv("CACHE_FILE", "data/listings_cache.json"),
		OutputFile:    getEnv("OUTPUT_FILE", "data/listings.json"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "data/listings.csv"),
		LockTTL:       time.Duration(getEnvInt("LOCK_TTL_SEC", 900)) * time.Second,

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1500),
		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		FetchTimeout:   time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", 30)) * time.Second,
		UserAgent:      getEnv("USER_AGENT", defaultUserAgent),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		Email: EmailConfig{
			Sender:     getEnv("EMAIL_SENDER", ""),
			Password:   getEnv("EMAIL_PASSWORD", ""),
			Recipients: getEnvList("EMAIL_RECIPIENTS", nil),
			SMTPHost:   getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:   getEnvInt("SMTP_PORT", 465),
		},
		DashboardURL: getEnv("DASHBOARD_URL", ""),

		Postgres: PostgresConfig{
			Enabled:  getEnvBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "regent"),
			Password: getEnv("POSTGRES_PASSWORD", "regent123"),
			DB:       getEnv("POSTGRES_DB", "regent_db"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogJSON:  getEnvBool("LOG_JSON", false),

		SourcesFile: getEnv("SOURCES_FILE", ""),
	}

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UseSources replaces the configured sources with the rules in path and
// re-validates.
func (c *Config) UseSources(path string) error {
	sources, err := LoadSources(path)
	if err != nil {
		return err
	}
	c.SourcesFile = path
	c.Sources = sources
	return c.Validate()
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Filter.MaxPrice > 0 && c.Filter.MinPrice > c.Filter.MaxPrice {
		return fmt.Errorf("invalid config: MIN_PRICE %d exceeds MAX_PRICE %d", c.Filter.MinPrice, c.Filter.MaxPrice)
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("invalid config: duplicate source id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	p := c.Postgres
	return "host=" + p.Host +
		" port=" + p.Port +
		" user=" + p.User +
		" password=" + p.Password +
		" dbname=" + p.DB +
		" sslmode=" + p.SSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntList(key string, fallback []int) []int {
	parts := getEnvList(key, nil)
	if parts == nil {
		return fallback
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
