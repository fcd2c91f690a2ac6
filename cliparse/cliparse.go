package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LimitConfig holds one rate limiter's thresholds.
type LimitConfig struct {
	Limit          int
	Window         time.Duration
	BurstLimit     int
	BurstExtension time.Duration
}

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	AdminKey     string

	GatewayURL     string
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration
	CallbackSecret string

	PricePerVote decimal.Decimal
	MinAmount    decimal.Decimal

	APILimit    LimitConfig
	VoteLimit   LimitConfig
	DecisionTTL time.Duration

	RedisAddr     string
	KafkaBrokers  []string
	CreditWorkers int

	DevMode   bool
	LogLevel  string
	LogFormat string
}

// ParseFlags validates flags and fills the rest from the environment.
// A .env file in the working directory is loaded first; variables already
// set in the environment win.
func ParseFlags(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	var envFile string

	fs := flag.NewFlagSet("quickly-vote", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.GatewayURL, "g", "", "Payment gateway URL")
	fs.StringVar(&envFile, "env-file", "", "Extra .env file to load")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.AdminKey, "admin-key", "", "Admin key (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var err error

	// Fall back to environment variables
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("PORT", 3318); err != nil {
			return Config{}, err
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, fmt.Errorf("invalid DATABASE_TYPE %q", cfg.DatabaseType)
	}

	if cfg.GatewayURL == "" {
		cfg.GatewayURL = os.Getenv("GATEWAY_URL")
	}
	if cfg.GatewayURL == "" {
		return Config{}, errors.New("gateway URL required (use -g or GATEWAY_URL env)")
	}

	// Secrets - MUST be provided
	if cfg.AdminKey == "" {
		cfg.AdminKey = os.Getenv("ADMIN_KEY")
	}
	if cfg.AdminKey == "" {
		return Config{}, errors.New("ADMIN_KEY required")
	}
	cfg.CallbackSecret = os.Getenv("CALLBACK_SECRET")

	if cfg.GatewayTimeout, err = envDuration("GATEWAY_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = envDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PricePerVote, err = envDecimal("PRICE_PER_VOTE", decimal.NewFromInt(10)); err != nil {
		return Config{}, err
	}
	if cfg.MinAmount, err = envDecimal("MIN_AMOUNT", decimal.NewFromInt(1)); err != nil {
		return Config{}, err
	}

	if cfg.APILimit, err = envLimit("API", LimitConfig{
		Limit: 100, Window: time.Minute, BurstLimit: 20, BurstExtension: 10 * time.Second,
	}); err != nil {
		return Config{}, err
	}
	if cfg.VoteLimit, err = envLimit("VOTE", LimitConfig{
		Limit: 300, Window: time.Minute, BurstLimit: 100, BurstExtension: 10 * time.Second,
	}); err != nil {
		return Config{}, err
	}
	if cfg.DecisionTTL, err = envDuration("DECISION_TTL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if cfg.CreditWorkers, err = envInt("CREDIT_WORKERS", 4); err != nil {
		return Config{}, err
	}

	cfg.DevMode = os.Getenv("APP_ENV") == "development"
	cfg.LogLevel = envString("LOG_LEVEL", "info")
	cfg.LogFormat = envString("LOG_FORMAT", "text")

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return d, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s env variable", key)
	}
	return d, nil
}

// envLimit reads <PREFIX>_RATE_LIMIT, <PREFIX>_RATE_WINDOW,
// <PREFIX>_BURST_LIMIT and <PREFIX>_BURST_EXTENSION.
func envLimit(prefix string, def LimitConfig) (LimitConfig, error) {
	var (
		lc  LimitConfig
		err error
	)
	if lc.Limit, err = envInt(prefix+"_RATE_LIMIT", def.Limit); err != nil {
		return LimitConfig{}, err
	}
	if lc.Window, err = envDuration(prefix+"_RATE_WINDOW", def.Window); err != nil {
		return LimitConfig{}, err
	}
	if lc.BurstLimit, err = envInt(prefix+"_BURST_LIMIT", def.BurstLimit); err != nil {
		return LimitConfig{}, err
	}
	if lc.BurstExtension, err = envDuration(prefix+"_BURST_EXTENSION", def.BurstExtension); err != nil {
		return LimitConfig{}, err
	}
	if lc.Limit < 1 || lc.BurstLimit < 0 {
		return LimitConfig{}, fmt.Errorf("invalid %s rate limit", strings.ToLower(prefix))
	}
	return lc, nil
}
