package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saccohub/settlement/internal/mpesa"
)

// Config is the runtime configuration of the settlement engine.
type Config struct {
	Port     string
	DBPath   string
	SeedPath string

	MPesa mpesa.Config

	SweepInterval          time.Duration
	SweepGrace             time.Duration
	DefaultAccountPriority []string
}

// Load reads an optional .env file and then the environment. Unset
// variables take their defaults; malformed ones are an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARNING: could not read .env: %v", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBPath:   getEnv("DB_PATH", "settlement.db"),
		SeedPath: os.Getenv("SEED_PATH"),
		MPesa: mpesa.Config{
			BaseURL:            getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:        os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret:     os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:          getEnv("MPESA_SHORTCODE", "174379"),
			PassKey:            os.Getenv("MPESA_PASSKEY"),
			CallbackURL:        os.Getenv("MPESA_CALLBACK_URL"),
			B2CResultURL:       os.Getenv("MPESA_B2C_RESULT_URL"),
			B2CTimeoutURL:      os.Getenv("MPESA_B2C_TIMEOUT_URL"),
			InitiatorName:      os.Getenv("MPESA_INITIATOR_NAME"),
			SecurityCredential: os.Getenv("MPESA_SECURITY_CREDENTIAL"),
		},
		DefaultAccountPriority: splitList(getEnv("DEFAULT_ACCOUNT_PRIORITY", "SAVINGS,ALPHA")),
	}

	var err error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"MPESA_HTTP_TIMEOUT", 30 * time.Second, &cfg.MPesa.HTTPTimeout},
		{"BREAKER_COOLDOWN", 5 * time.Minute, &cfg.MPesa.BreakerCooldown},
		{"TOKEN_EXPIRY_MARGIN", 60 * time.Second, &cfg.MPesa.TokenExpiryMargin},
		{"SWEEP_INTERVAL", 0, &cfg.SweepInterval},
		{"SWEEP_GRACE", 2 * time.Minute, &cfg.SweepGrace},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.MPesa.BreakerThreshold, err = getInt("BREAKER_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.MPesa.BreakerThreshold < 1 {
		return nil, fmt.Errorf("BREAKER_THRESHOLD must be at least 1, got %d", cfg.MPesa.BreakerThreshold)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
