package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// MinSchedulerInterval is the finest interval the cron scheduler supports.
const MinSchedulerInterval = time.Second

// DefaultRiskKeywords is the critical keyword set used when RISK_KEYWORDS is unset.
var DefaultRiskKeywords = []string{
	"enkaz", "mahsur", "göçük", "yangın", "nefes", "kanama", "yaralı", "çöktü",
	"trapped", "fire", "breathing", "blood", "injured", "collapse",
}

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		Driver string
		DSN    string
	}
	API struct {
		Port           string
		TrustedProxies []string
	}
	Logging struct {
		Dir        string
		Level      string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
	RateLimit struct {
		Max    int
		Window time.Duration
	}
	Risk struct {
		Keywords []string
	}
	Push struct {
		URL           string
		AccessToken   string
		Timeout       time.Duration
		RatePerSecond int
	}
	Dispatch struct {
		Workers int
	}
	Scheduler struct {
		Enabled  bool
		Interval time.Duration
		Title    string
		Body     string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	var cfg Config
	p := parser{getenv: getenv}

	cfg.DB.Driver = p.str("DB_DRIVER", DriverPostgres)
	cfg.DB.DSN = getenv("DB_DSN")

	cfg.API.Port = p.str("API_PORT", ":8080")
	// Empty means X-Forwarded-For is ignored and clients are keyed by socket address.
	cfg.API.TrustedProxies = p.list("TRUSTED_PROXIES", nil)

	cfg.Logging.Dir = p.str("LOG_DIR", "logs")
	cfg.Logging.Level = p.str("LOG_LEVEL", "info")
	cfg.Logging.MaxSizeMB = p.int("LOG_MAX_SIZE_MB", 50)
	cfg.Logging.MaxBackups = p.int("LOG_MAX_BACKUPS", 5)
	cfg.Logging.MaxAgeDays = p.int("LOG_MAX_AGE_DAYS", 14)

	cfg.RateLimit.Max = p.int("RATE_LIMIT_MAX", 5)
	cfg.RateLimit.Window = p.duration("RATE_LIMIT_WINDOW", 60*time.Second)

	cfg.Risk.Keywords = p.list("RISK_KEYWORDS", DefaultRiskKeywords)

	cfg.Push.URL = p.str("PUSH_URL", "https://exp.host/--/api/v2/push/send")
	cfg.Push.AccessToken = getenv("PUSH_ACCESS_TOKEN")
	cfg.Push.Timeout = p.duration("PUSH_TIMEOUT", 10*time.Second)
	cfg.Push.RatePerSecond = p.int("PUSH_RATE_PER_SECOND", 100)

	cfg.Dispatch.Workers = p.int("DISPATCH_WORKERS", 10)

	cfg.Scheduler.Enabled = p.bool("SCHEDULER_ENABLED", true)
	cfg.Scheduler.Interval = p.duration("SCHEDULER_INTERVAL", 30*time.Second)
	cfg.Scheduler.Title = p.str("ALERT_TITLE", "Deprem Uyarısı")
	cfg.Scheduler.Body = p.str("ALERT_BODY", "📢 Deprem tespit edildi. Güvende misiniz?")

	cfg.Kafka.Broker = getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = p.str("KAFKA_TOPIC", "relief_alerts")
	cfg.Kafka.GroupID = p.str("KAFKA_GROUP_ID", "relief-alert-service")

	cfg.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.ChatID = p.int64("TELEGRAM_CHAT_ID", 0)

	if len(p.errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}

	// Validate required settings
	missing := []string{}
	switch cfg.DB.Driver {
	case DriverPostgres:
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	if cfg.RateLimit.Max <= 0 || cfg.RateLimit.Window <= 0 {
		return Config{}, fmt.Errorf("rate limit must be positive, got %d per %s", cfg.RateLimit.Max, cfg.RateLimit.Window)
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 1
	}
	if cfg.Scheduler.Interval < MinSchedulerInterval {
		return Config{}, fmt.Errorf("SCHEDULER_INTERVAL must be at least %s, got %s", MinSchedulerInterval, cfg.Scheduler.Interval)
	}

	return cfg, nil
}

// parser collects conversion errors instead of defaulting bad values to zero.
type parser struct {
	getenv func(string) string
	errs   []string
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) int64(key string, def int64) int64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a duration", key, v))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
