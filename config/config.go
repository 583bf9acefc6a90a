// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Monnify  MonnifyConfig
	Webhook  WebhookConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Sweeper  SweeperConfig
	Store    StoreConfig
	Funding  FundingConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// MonnifyConfig holds the gateway credentials. It is handed to the gateway
// client constructor and never read from the environment afterwards.
type MonnifyConfig struct {
	BaseURL        string
	APIKey         string
	SecretKey      string
	ContractCode   string
	CurrencyCode   string
	PaymentMethods []string
	Timeout        time.Duration
}

type WebhookConfig struct {
	// SecretKey is the shared HMAC secret. Monnify signs webhooks with the
	// merchant secret key, so it defaults to Monnify.SecretKey.
	SecretKey       string
	SignatureHeader string
	MaxBodyBytes    int64
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	// BalanceTTL bounds how long a cached wallet balance is served.
	BalanceTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
	// PublishTimeout bounds how long a settled request waits on the broker.
	PublishTimeout time.Duration
}

type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string
}

type FundingConfig struct {
	RefPrefix          string
	DefaultRedirectURL string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode,
	)
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func (c ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

func Load(logger *zap.Logger) (*Config, error) {
	monnifySecret := getEnv("MONNIFY_SECRET_KEY", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8030"),
			Env:            getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "funding"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
		},
		Monnify: MonnifyConfig{
			BaseURL:        strings.TrimRight(getEnv("MONNIFY_BASE_URL", "https://sandbox.monnify.com"), "/"),
			APIKey:         getEnv("MONNIFY_API_KEY", ""),
			SecretKey:      monnifySecret,
			ContractCode:   getEnv("MONNIFY_CONTRACT_CODE", ""),
			CurrencyCode:   getEnv("MONNIFY_CURRENCY_CODE", "NGN"),
			PaymentMethods: getEnvSlice("MONNIFY_PAYMENT_METHODS", []string{"CARD", "ACCOUNT_TRANSFER"}),
			Timeout:        getEnvDuration("MONNIFY_TIMEOUT", 30*time.Second),
		},
		Webhook: WebhookConfig{
			SecretKey:       getEnv("WEBHOOK_SECRET_KEY", monnifySecret),
			SignatureHeader: getEnv("WEBHOOK_SIGNATURE_HEADER", "monnify-signature"),
			MaxBodyBytes:    int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		},
		Redis: RedisConfig{
			Host:       getEnv("REDIS_HOST", "redis"),
			Port:       getEnv("REDIS_PORT", "6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			Enabled:    getEnvBool("REDIS_ENABLED", true),
			BalanceTTL: getEnvDuration("REDIS_BALANCE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
			Topic:          getEnv("KAFKA_TOPIC", "wallet.funding.events"),
			Enabled:        getEnvBool("KAFKA_ENABLED", false),
			PublishTimeout: getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Sweeper: SweeperConfig{
			Enabled:  getEnvBool("SWEEPER_ENABLED", true),
			Interval: getEnvDuration("SWEEPER_INTERVAL", 5*time.Minute),
			MinAge:   getEnvDuration("SWEEPER_MIN_AGE", 10*time.Minute),
			Batch:    getEnvInt("SWEEPER_BATCH", 100),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "postgres"),
		},
		Funding: FundingConfig{
			RefPrefix:          getEnv("FUNDING_REF_PREFIX", "WAL"),
			DefaultRedirectURL: getEnv("FUNDING_REDIRECT_URL", "http://localhost:3000/payment/callback"),
		},
	}

	if err := cfg.validate(logger); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate(logger *zap.Logger) error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.Store.Driver)
	}

	missing := make([]string, 0, 4)
	if c.Monnify.APIKey == "" {
		missing = append(missing, "MONNIFY_API_KEY")
	}
	if c.Monnify.SecretKey == "" {
		missing = append(missing, "MONNIFY_SECRET_KEY")
	}
	if c.Monnify.ContractCode == "" {
		missing = append(missing, "MONNIFY_CONTRACT_CODE")
	}
	if c.Webhook.SecretKey == "" {
		missing = append(missing, "WEBHOOK_SECRET_KEY")
	}

	if len(missing) > 0 {
		if c.Server.IsProduction() {
			return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
		}
		logger.Warn("gateway configuration incomplete",
			zap.Strings("missing", missing),
			zap.String("environment", c.Server.Env))
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("SWEEPER_INTERVAL must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
