package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port             string
	Env              string
	JWTSecret        string
	StoreBackend     string
	DatabaseURL      string
	MongoURI         string
	MongoDatabase    string
	KafkaBrokers     []string
	KafkaTopicPrefix string
	ReconcileTimeout time.Duration
	SeedDemoData     bool
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		Port:             getenv("APP_PORT", "8080"),
		Env:              getenv("APP_ENV", "dev"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MongoURI:         getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getenv("MONGO_DATABASE", "vidly"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix: getenv("KAFKA_TOPIC_PREFIX", "vidly"),
	}

	var err error
	if cfg.ReconcileTimeout, err = time.ParseDuration(getenv("RECONCILE_TIMEOUT", "5s")); err != nil {
		return Config{}, fmt.Errorf("RECONCILE_TIMEOUT: %w", err)
	}
	if cfg.ReconcileTimeout <= 0 {
		return Config{}, errors.New("RECONCILE_TIMEOUT must be positive")
	}
	if cfg.SeedDemoData, err = strconv.ParseBool(getenv("SEED_DEMO_DATA", "false")); err != nil {
		return Config{}, fmt.Errorf("SEED_DEMO_DATA: %w", err)
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, errors.New("JWT_SECRET is required outside dev")
		}
		cfg.JWTSecret = "local_dev_secret"
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendMongo:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
