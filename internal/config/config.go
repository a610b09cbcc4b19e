// Package config loads service configuration from defaults, a .env file,
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/and161185/userdir/migrations"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string // empty disables the admin API
	TLSCert         string // admin API TLS; plaintext when empty
	TLSKey          string
	LogLevel        string
	ShutdownTimeout time.Duration
	Dev             bool

	Backend  string
	Table    string
	Postgres PostgresConfig
	Dynamo   DynamoConfig

	Telegram TelegramConfig
	Limiter  LimiterConfig

	JWTKey string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN           string
	RunMigrations bool
}

// DynamoConfig holds DynamoDB client values. Empty keys fall back to the
// default AWS credential chain.
type DynamoConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// TelegramConfig configures the bot.
type TelegramConfig struct {
	Token         string
	APIURL        string
	WebhookSecret string
	Command       string
}

// LimiterConfig throttles senders with repeated rejected requests.
type LimiterConfig struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// Load reads .env (if present) and the environment, then applies args as
// flag overrides and validates the result.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":9090"),
		TLSCert:         os.Getenv("GRPC_TLS_CERT"),
		TLSKey:          os.Getenv("GRPC_TLS_KEY"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Dev:             getEnvAsBool("DEV", false),
		Backend:         getEnv("STORE_BACKEND", BackendPostgres),
		Table:           getEnv("DIRECTORY_TABLE", migrations.UsersTable),
		Postgres: PostgresConfig{
			DSN:           os.Getenv("POSTGRES_DSN"),
			RunMigrations: getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
		},
		Dynamo: DynamoConfig{
			Region:    getEnv("AWS_REGION", "us-east-1"),
			Endpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		Telegram: TelegramConfig{
			Token:         os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			WebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
			Command:       getEnv("TELEGRAM_COMMAND", "/create_api_key"),
		},
		Limiter: LimiterConfig{
			Window:   getEnvAsDuration("LIMITER_WINDOW", 15*time.Minute),
			MaxFails: getEnvAsInt("LIMITER_MAX_FAILS", 5),
			BlockFor: getEnvAsDuration("LIMITER_BLOCK_FOR", 15*time.Minute),
		},
		JWTKey: os.Getenv("JWT_KEY"),
	}

	fs := flag.NewFlagSet("userdir", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "webhook listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "admin gRPC listen address (empty disables)")
	fs.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "admin API TLS certificate (PEM)")
	fs.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "admin API TLS private key (PEM)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "enable gRPC reflection (dev only)")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "store backend: postgres, dynamodb or memory")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "directory table name")
	fs.StringVar(&cfg.Postgres.DSN, "dsn", cfg.Postgres.DSN, "PostgreSQL DSN")
	fs.BoolVar(&cfg.Postgres.RunMigrations, "migrate", cfg.Postgres.RunMigrations, "apply migrations on startup")
	fs.StringVar(&cfg.Dynamo.Region, "aws-region", cfg.Dynamo.Region, "AWS region")
	fs.StringVar(&cfg.Dynamo.Endpoint, "dynamodb-endpoint", cfg.Dynamo.Endpoint, "DynamoDB endpoint override")
	fs.StringVar(&cfg.Telegram.APIURL, "telegram-api", cfg.Telegram.APIURL, "Telegram Bot API base URL")
	fs.StringVar(&cfg.Telegram.Command, "command", cfg.Telegram.Command, "bot command that issues API keys")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var problems []error
	switch c.Backend {
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			problems = append(problems, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
		// migrations only create the users table
		if c.Table != migrations.UsersTable {
			problems = append(problems, fmt.Errorf("DIRECTORY_TABLE must be %q for the postgres backend", migrations.UsersTable))
		}
	case BackendDynamoDB, BackendMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Table == "" {
		problems = append(problems, errors.New("DIRECTORY_TABLE must not be empty"))
	}
	if c.Telegram.Token == "" {
		problems = append(problems, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.GRPCAddr != "" && c.JWTKey == "" {
		problems = append(problems, errors.New("JWT_KEY is required when the admin API is enabled"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		problems = append(problems, errors.New("GRPC_TLS_CERT and GRPC_TLS_KEY must be set together"))
	}
	if c.Limiter.MaxFails <= 0 {
		problems = append(problems, errors.New("LIMITER_MAX_FAILS must be positive"))
	}
	return errors.Join(problems...)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}
