package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Protocol constants (card count, price, countdown
// window) are configurable so staging runs can use a smaller grid.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	StoreBackend string // document store backend: "memory" or "mysql"
	DBUser       string // database username (mysql backend only)
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	DBMaxConns   int    // connection pool ceiling for the mysql backend
	AMQPURL      string // RabbitMQ URL for change fanout and sale events (optional)
	JWTSecret    string // secret used to sign admin JWTs
	AccessTTLMin int    // admin access token time-to-live in minutes

	AdminEmail        string // seeded admin login email
	AdminPasswordHash string // bcrypt hash for the seeded admin
	BcryptCost        int    // bcrypt cost for password hashing

	TotalCards   int // number of cards in the grid
	CardPrice    int // price per card
	CountdownSec int // selection countdown window in seconds

	UploadURL    string // payment proof upload endpoint (optional; proofs pass through unverified when empty)
	UploadPreset string // unsigned upload preset name
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		StoreBackend: envStr("STORE_BACKEND", "memory"),
		DBPass:       os.Getenv("DB_PASS"),
		AMQPURL:      os.Getenv("RABBITMQ_URL"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),

		AdminEmail:        must("ADMIN_EMAIL"),
		AdminPasswordHash: must("ADMIN_PASSWORD_HASH"),
		BcryptCost:        envInt("BCRYPT_COST", 12),

		TotalCards:   envInt("TOTAL_CARDS", 75),
		CardPrice:    envInt("CARD_PRICE", 300),
		CountdownSec: envInt("COUNTDOWN_SEC", 300),

		UploadURL:    os.Getenv("UPLOAD_URL"),
		UploadPreset: os.Getenv("UPLOAD_PRESET"),
	}
	if cfg.StoreBackend == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
		cfg.DBMaxConns = envInt("DB_MAX_CONNS", 25)
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
