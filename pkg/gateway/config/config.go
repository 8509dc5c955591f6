// Package config holds gateway configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config configures the messaging gateway.
type Config struct {
	Addr string

	// VerifyToken must match the token the messaging platform sends
	// during webhook provisioning.
	VerifyToken string

	MaxBodyBytes int64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

// Default returns the standard gateway configuration.
func Default() Config {
	return Config{
		Addr:                ":8080",
		MaxBodyBytes:        10 << 20,
		ReadHeaderTimeout:   10 * time.Second,
		ReadTimeout:         30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// LoadFromEnv builds a Config from environment variables, starting from
// the defaults.
func LoadFromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.VerifyToken = os.Getenv("GATEWAY_VERIFY_TOKEN")

	if v := os.Getenv("GATEWAY_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid GATEWAY_MAX_BODY_BYTES: %q", v)
		}
		cfg.MaxBodyBytes = n
	}
	return cfg, nil
}
