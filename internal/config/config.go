package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the application reads from the environment
type Config struct {
	DBType       string
	DatabaseURL  string
	CacheBackend string
	RedisAddr    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ModelEconomy  string
	ModelStandard string
	ModelPremium  string

	ProviderTimeout  time.Duration
	ProviderAttempts int
	ProviderBackoff  time.Duration

	HTTPAddr      string
	TelegramToken string
	AdminUserIDs  []int64

	DefaultDailyMinutes int
	PlanDays            int
	EnableScheduler     bool

	NumericFullTolerance    float64
	NumericPartialTolerance float64
	NumericPartialCredit    float64

	LogLevel slog.Level
}

// Cache backends
const (
	CacheSQL    = "sql"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		DBType:                  "sqlite",
		CacheBackend:            CacheSQL,
		RedisAddr:               "localhost:6379",
		ModelEconomy:            "gpt-4o-mini",
		ModelStandard:           "gpt-4o",
		ModelPremium:            "gpt-4.1",
		ProviderTimeout:         60 * time.Second,
		ProviderAttempts:        3,
		ProviderBackoff:         time.Second,
		HTTPAddr:                ":8080",
		DefaultDailyMinutes:     120,
		PlanDays:                7,
		EnableScheduler:         true,
		NumericFullTolerance:    0.001,
		NumericPartialTolerance: 0.005,
		NumericPartialCredit:    0.5,
		LogLevel:                slog.LevelInfo,
	}
}

// Load reads envFile (when it exists) into the environment and builds the
// configuration. Malformed values are errors rather than silent defaults.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %v", envFile, err)
		}
	}

	cfg := DefaultConfig()
	p := &parser{}

	p.str("DB_TYPE", &cfg.DBType)
	p.str("DATABASE_URL", &cfg.DatabaseURL)
	p.str("CACHE_BACKEND", &cfg.CacheBackend)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	p.str("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	p.str("MODEL_ECONOMY", &cfg.ModelEconomy)
	p.str("MODEL_STANDARD", &cfg.ModelStandard)
	p.str("MODEL_PREMIUM", &cfg.ModelPremium)
	p.duration("PROVIDER_TIMEOUT", &cfg.ProviderTimeout)
	p.integer("PROVIDER_ATTEMPTS", &cfg.ProviderAttempts)
	p.duration("PROVIDER_BACKOFF", &cfg.ProviderBackoff)
	p.str("HTTP_ADDR", &cfg.HTTPAddr)
	p.str("TELEGRAM_BOT_TOKEN", &cfg.TelegramToken)
	p.ids("ADMIN_USER_IDS", &cfg.AdminUserIDs)
	p.integer("DEFAULT_DAILY_MINUTES", &cfg.DefaultDailyMinutes)
	p.integer("PLAN_DAYS", &cfg.PlanDays)
	p.boolean("ENABLE_SCHEDULER", &cfg.EnableScheduler)
	p.float("NUMERIC_FULL_TOLERANCE", &cfg.NumericFullTolerance)
	p.float("NUMERIC_PARTIAL_TOLERANCE", &cfg.NumericPartialTolerance)
	p.float("NUMERIC_PARTIAL_CREDIT", &cfg.NumericPartialCredit)
	p.level("LOG_LEVEL", &cfg.LogLevel)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	c.DBType = strings.ToLower(c.DBType)
	switch c.DBType {
	case "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.DBType)
	}
	switch c.CacheBackend {
	case CacheSQL, CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.ProviderAttempts < 1 {
		return fmt.Errorf("PROVIDER_ATTEMPTS must be at least 1, got %d", c.ProviderAttempts)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	if c.DefaultDailyMinutes < 0 || c.PlanDays < 1 {
		return fmt.Errorf("invalid plan settings: %d minutes, %d days", c.DefaultDailyMinutes, c.PlanDays)
	}
	if c.NumericFullTolerance < 0 || c.NumericPartialTolerance < c.NumericFullTolerance {
		return errors.New("numeric tolerances must satisfy 0 <= full <= partial")
	}
	if c.NumericPartialCredit < 0 || c.NumericPartialCredit > 1 {
		return errors.New("NUMERIC_PARTIAL_CREDIT must be within 0..1")
	}
	return nil
}

// IsAdmin reports whether the Telegram user may run admin commands
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// parser records the first malformed variable
type parser struct {
	err error
}

func (p *parser) lookup(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(name, value string, err error) {
	p.err = fmt.Errorf("invalid %s=%q: %v", name, value, err)
}

func (p *parser) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *parser) integer(name string, dst *int) {
	if v, ok := p.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(name string, dst *float64) {
	if v, ok := p.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (p *parser) boolean(name string, dst *bool) {
	if v, ok := p.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = b
	}
}

// duration accepts Go durations ("90s") or plain seconds ("90")
func (p *parser) duration(name string, dst *time.Duration) {
	if v, ok := p.lookup(name); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(secs) * time.Second
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (p *parser) ids(name string, dst *[]int64) {
	if v, ok := p.lookup(name); ok {
		var out []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				p.fail(name, v, err)
				return
			}
			out = append(out, id)
		}
		*dst = out
	}
}

func (p *parser) level(name string, dst *slog.Level) {
	if v, ok := p.lookup(name); ok {
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			p.fail(name, v, err)
		}
	}
}
