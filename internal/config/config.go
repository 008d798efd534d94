package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"abroadguide.org/internal/auth"
)

const (
	envAddr            = "GATEWAY_ADDR"
	envPGDSN           = "GATEWAY_PG_DSN"
	envAuthSecret      = "GATEWAY_AUTH_SECRET"
	envTokenTTL        = "GATEWAY_TOKEN_TTL"
	envTokenIssuer     = "GATEWAY_TOKEN_ISSUER"
	envBcryptCost      = "GATEWAY_BCRYPT_COST"
	envMaxBodyBytes    = "GATEWAY_MAX_BODY_BYTES"
	envReadTimeout     = "GATEWAY_READ_TIMEOUT"
	envWriteTimeout    = "GATEWAY_WRITE_TIMEOUT"
	envShutdownTimeout = "GATEWAY_SHUTDOWN_TIMEOUT"
)

const (
	defaultAddr            = ":8080"
	defaultTokenTTL        = time.Hour
	defaultMaxBodyBytes    = int64(1 << 20)
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	minSecretLength        = 32
	minUniqueBytesInSecret = 16
	minTokenTTL            = time.Second
)

// Config is the runtime configuration of the gateway.
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	// PostgresDSN selects the Postgres stores; empty means in-memory stores.
	PostgresDSN string
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type AuthConfig struct {
	Secret      []byte
	TokenTTL    time.Duration
	TokenIssuer string
	BcryptCost  int
}

// LoadDotEnv loads key=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv(envAddr, defaultAddr),
			ReadTimeout:     getDuration(envReadTimeout, defaultReadTimeout, &errs),
			WriteTimeout:    getDuration(envWriteTimeout, defaultWriteTimeout, &errs),
			ShutdownTimeout: getDuration(envShutdownTimeout, defaultShutdownTimeout, &errs),
			MaxBodyBytes:    getInt64(envMaxBodyBytes, defaultMaxBodyBytes, &errs),
		},
		Auth: AuthConfig{
			Secret:      []byte(os.Getenv(envAuthSecret)),
			TokenTTL:    getDuration(envTokenTTL, defaultTokenTTL, &errs),
			TokenIssuer: strings.TrimSpace(getEnv(envTokenIssuer, auth.DefaultIssuer)),
			BcryptCost:  int(getInt64(envBcryptCost, int64(bcrypt.DefaultCost), &errs)),
		},
		PostgresDSN: strings.TrimSpace(os.Getenv(envPGDSN)),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the gateway refuses to start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%s must not be empty", envAddr)
	}
	if len(c.Auth.Secret) == 0 {
		return fmt.Errorf("%s must be set", envAuthSecret)
	}
	if len(c.Auth.Secret) < minSecretLength {
		return fmt.Errorf("%s must be at least %d bytes", envAuthSecret, minSecretLength)
	}
	if !hasMinimumEntropy(c.Auth.Secret) {
		return fmt.Errorf("%s has insufficient entropy; use a random value", envAuthSecret)
	}
	if c.Auth.TokenTTL < minTokenTTL {
		return fmt.Errorf("%s must be at least %s", envTokenTTL, minTokenTTL)
	}
	if c.Auth.TokenIssuer == "" {
		return fmt.Errorf("%s must not be empty", envTokenIssuer)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%s must be between %d and %d", envBcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%s must be positive", envMaxBodyBytes)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	return nil
}

// UsesPostgres reports whether a Postgres DSN is configured.
func (c *Config) UsesPostgres() bool { return c.PostgresDSN != "" }

func hasMinimumEntropy(secret []byte) bool {
	seen := make(map[byte]struct{}, len(secret))
	for _, b := range secret {
		seen[b] = struct{}{}
	}
	return len(seen) >= minUniqueBytesInSecret
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64, errs *[]error) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return n
}

// getDuration accepts Go duration syntax ("90s", "1h") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, value))
	return defaultValue
}
