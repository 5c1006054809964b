// Package config loads application configuration from environment
// variables, with a .env file honored when present. Optional backends
// (Postgres, Redis, RabbitMQ, S3) activate only when their variable is set;
// everything has an in-process default so the server runs with no
// environment at all.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.
type Config struct {
	Port        string // HTTP port to listen on
	DatabaseDSN string // Postgres DSN; empty selects the in-memory store
	AMQPURL     string // RabbitMQ URL; empty selects the in-process notifier

	RedisAddr     string // Redis address; empty selects the in-memory registry
	RedisPassword string
	RedisDB       int

	JWTSecret string // secret for bearer identity tokens

	S3Region    string
	S3Endpoint  string // optional, for MinIO-style deployments
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string // empty disables image URL signing

	BroadcastConcurrency int // parallel deliveries per fan-out
}

// Load reads configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                 getenv("PORT", "8080"),
		DatabaseDSN:          os.Getenv("DATABASE_DSN"),
		AMQPURL:              os.Getenv("AMQP_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getenvInt("REDIS_DB", 0),
		JWTSecret:            getenv("JWT_SECRET", "dev-secret"),
		S3Region:             getenv("S3_REGION", "us-east-1"),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		BroadcastConcurrency: getenvInt("BROADCAST_CONCURRENCY", 32),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
