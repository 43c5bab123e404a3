package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// RabbitMQ
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPassword string

	// JWT
	JWTSecret string

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
	S3BucketName       string
	S3UseSSL           string

	// External providers
	PaymentProviderURL string
	PaymentProviderKey string
	ImageProviderURL   string
	ImageProviderKey   string

	// Credits
	StartingBalance    string
	SpendMaxRetries    int
	GenerationTimeout  time.Duration
	ReconcilerInterval time.Duration
	ReconcilerStaleAge time.Duration
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	config := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "pixelmint"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		RabbitMQHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", "guest"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:        getEnv("AWS_ENDPOINT", ""),
		S3BucketName:       getEnv("S3_BUCKET_NAME", "pixelmint-artifacts"),
		S3UseSSL:           getEnv("S3_USE_SSL", "true"),

		PaymentProviderURL: getEnv("PAYMENT_PROVIDER_URL", "http://localhost:9091"),
		PaymentProviderKey: getEnv("PAYMENT_PROVIDER_KEY", ""),
		ImageProviderURL:   getEnv("IMAGE_PROVIDER_URL", "http://localhost:9092"),
		ImageProviderKey:   getEnv("IMAGE_PROVIDER_KEY", ""),

		StartingBalance:    getEnv("CREDITS_STARTING_BALANCE", "20.00"),
		SpendMaxRetries:    getEnvInt("CREDITS_SPEND_MAX_RETRIES", 3),
		GenerationTimeout:  getEnvDuration("GENERATION_TIMEOUT", 120*time.Second),
		ReconcilerInterval: getEnvDuration("RECONCILER_INTERVAL", time.Minute),
		ReconcilerStaleAge: getEnvDuration("RECONCILER_STALE_AGE", 10*time.Minute),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
