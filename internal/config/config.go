package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries everything the service reads from the environment. Key
// material stays as the raw configured strings here; decoding and validation
// belong to the keys package.
type Config struct {
	ServerPort int
	LogLevel   string

	DatabaseURL string

	// RSA keypair for access/db-access token signing, PEM wrapped in base64
	// and possibly double-encoded as a JSON string by the deployment tooling.
	JWTPrivateKey string
	JWTPublicKey  string

	RefreshSecret  string
	DBAccessSecret string

	AccessExpiresIn   int
	RefreshExpiresIn  int
	DBAccessExpiresIn int

	// Origin of the deployment, used to derive the cookie domain. Empty or
	// localhost means development: cookies are set without a domain.
	OriginURL string

	SyncURL string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found, using system environment: %v", err)
	}

	return &Config{
		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTPrivateKey: os.Getenv("JWT_PRIVATE_KEY"),
		JWTPublicKey:  os.Getenv("JWT_PUBLIC_KEY"),

		RefreshSecret:  os.Getenv("REFRESH_SECRET"),
		DBAccessSecret: os.Getenv("DB_ACCESS_SECRET"),

		AccessExpiresIn:   EnvIntDefault("ACCESS_EXPIRES_IN", 15*60),
		RefreshExpiresIn:  EnvIntDefault("REFRESH_EXPIRES_IN", 30*24*60*60),
		DBAccessExpiresIn: EnvIntDefault("DB_ACCESS_EXPIRES_IN", 5*60),

		OriginURL: os.Getenv("ORIGIN_URL"),
		SyncURL:   os.Getenv("SYNC_URL"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_AUTH_TOPIC", "auth_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
	}
}

// Validate checks the settings without which the service must not start.
func (c *Config) Validate() error {
	required := map[string]string{
		"DATABASE_URL":     c.DatabaseURL,
		"JWT_PRIVATE_KEY":  c.JWTPrivateKey,
		"JWT_PUBLIC_KEY":   c.JWTPublicKey,
		"REFRESH_SECRET":   c.RefreshSecret,
		"DB_ACCESS_SECRET": c.DBAccessSecret,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("missing required env %s", name)
		}
	}
	return nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
