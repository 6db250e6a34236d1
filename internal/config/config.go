package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string

	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins []string
	AdminIDs    []int64

	// first admin account, created at startup when missing
	BootstrapAdmin    string
	BootstrapPassword string

	// file storage; empty MinioEndpoint keeps uploads in memory
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// event publishing; empty AMQPURL disables it
	AMQPURL      string
	AMQPExchange string

	// grade notifications; empty BotToken disables them
	BotToken string

	BacklogEvery time.Duration
	Location     *time.Location
}

// Load reads the environment, after applying a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	tz := getenv("TZ", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	adminIDs, err := parseIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	ttl, err := time.ParseDuration(getenv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	every, err := time.ParseDuration(getenv("BACKLOG_EVERY", "1m"))
	if err != nil {
		return nil, fmt.Errorf("BACKLOG_EVERY: %w", err)
	}
	useSSL, _ := strconv.ParseBool(getenv("MINIO_USE_SSL", "false"))

	if (os.Getenv("BOOTSTRAP_ADMIN_USERNAME") == "") != (os.Getenv("BOOTSTRAP_ADMIN_PASSWORD") == "") {
		return nil, fmt.Errorf("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}

	cfg := &Config{
		DatabaseURL:       mustEnv("DATABASE_URL"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		Env:               getenv("ENV", "dev"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		JWTSecret:         mustEnv("JWT_SECRET"),
		TokenTTL:          ttl,
		CORSOrigins:       splitList(getenv("CORS_ORIGINS", "http://localhost:3000")),
		AdminIDs:          adminIDs,
		BootstrapAdmin:    os.Getenv("BOOTSTRAP_ADMIN_USERNAME"),
		BootstrapPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		MinioEndpoint:     os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       getenv("MINIO_BUCKET", "submissions"),
		MinioUseSSL:       useSSL,
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getenv("AMQP_EXCHANGE", "portal.events"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		BacklogEvery:      every,
		Location:          loc,
	}
	return cfg, nil
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("required env " + k + " is empty")
	}
	return v
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := splitList(s)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
