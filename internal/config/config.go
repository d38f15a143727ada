package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	RazorpayWebhookSecret string
	AdminAPIToken         string

	Commerce CommerceConfig
	Webhook  WebhookConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
}

// CommerceConfig points at the commerce backend admin API.
type CommerceConfig struct {
	BaseURL        string
	APIToken       string
	TimeoutSeconds int
}

type WebhookConfig struct {
	RateLimitEnabled bool
	Rate             float64
	Burst            int
	LockTTLSeconds   int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:               getenv("APP_SERVICE", "paysync"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           getenv("ENVIRONMENT", "development"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:          getenv("OTLP_ENDPOINT", "localhost:4317"),
		RazorpayWebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),
		AdminAPIToken:         strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		Commerce: CommerceConfig{
			BaseURL:        strings.TrimRight(strings.TrimSpace(getenv("COMMERCE_BASE_URL", "http://localhost:9000")), "/"),
			APIToken:       strings.TrimSpace(getenv("COMMERCE_API_TOKEN", "")),
			TimeoutSeconds: getenvInt("COMMERCE_TIMEOUT_SECONDS", 10),
		},
		Webhook: WebhookConfig{
			RateLimitEnabled: getenvBool("WEBHOOK_RATE_LIMIT_ENABLED", false),
			Rate:             getenvFloat("WEBHOOK_RATE", 20),
			Burst:            getenvInt("WEBHOOK_BURST", 40),
			LockTTLSeconds:   getenvInt("WEBHOOK_LOCK_TTL_SECONDS", 30),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "order-payments"),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "paysync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
