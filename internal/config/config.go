package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultUpstreamURL is the TradeIndia inquiry endpoint the proxy forwards to.
const DefaultUpstreamURL = "https://www.tradeindia.com/utils/my_inquiry.html"

// ErrMissingCredentials is returned by Load when any upstream credential is unset.
var ErrMissingCredentials = errors.New("missing required environment variables")

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	// Upstream credentials. Never log these.
	UserID    string
	ProfileID string
	Key       string

	UpstreamURL     string
	UpstreamTimeout time.Duration

	RateLimitMax           int
	RateLimitWindow        time.Duration
	RateLimitSweepInterval time.Duration
	TrustProxy             bool

	CORSOrigins       []string
	ClientTokenSecret string
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// SetDefaults registers every key Load reads, so viper can resolve them from
// the environment (AutomaticEnv upper-cases the key).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("user_id", "")
	v.SetDefault("profile_id", "")
	v.SetDefault("key", "")
	v.SetDefault("upstream_url", DefaultUpstreamURL)
	v.SetDefault("upstream_timeout", 20*time.Second)
	v.SetDefault("rate_limit_max", 30)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("rate_limit_sweep_interval", time.Duration(0))
	v.SetDefault("trust_proxy", false)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("client_token_secret", "")
	v.AutomaticEnv()
}

// LoadEnvFile reads a .env file into the process environment without
// overriding variables that are already set. An empty path means ".env" in
// the working directory, loaded best-effort like the old Node server did.
func LoadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load(filepath.Join(".", ".env"))
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration through v. Callers load .env files first
// (see LoadEnvFile) and bind any flags before calling Load.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Config{
		Port:     strings.TrimSpace(v.GetString("port")),
		AppEnv:   v.GetString("app_env"),
		LogLevel: v.GetString("log_level"),

		UserID:    v.GetString("user_id"),
		ProfileID: v.GetString("profile_id"),
		Key:       v.GetString("key"),

		UpstreamURL:     strings.TrimSpace(v.GetString("upstream_url")),
		UpstreamTimeout: v.GetDuration("upstream_timeout"),

		RateLimitMax:           v.GetInt("rate_limit_max"),
		RateLimitWindow:        v.GetDuration("rate_limit_window"),
		RateLimitSweepInterval: v.GetDuration("rate_limit_sweep_interval"),
		TrustProxy:             v.GetBool("trust_proxy"),

		CORSOrigins:       splitList(v.GetString("cors_origins")),
		ClientTokenSecret: v.GetString("client_token_secret"),
	}

	var missing []string
	if cfg.UserID == "" {
		missing = append(missing, "USER_ID")
	}
	if cfg.ProfileID == "" {
		missing = append(missing, "PROFILE_ID")
	}
	if cfg.Key == "" {
		missing = append(missing, "KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	switch {
	case cfg.Port == "":
		return Config{}, errors.New("PORT must not be empty")
	case cfg.UpstreamURL == "":
		return Config{}, errors.New("UPSTREAM_URL must not be empty")
	case cfg.UpstreamTimeout <= 0:
		return Config{}, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", cfg.UpstreamTimeout)
	case cfg.RateLimitMax < 1:
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX must be at least 1, got %d", cfg.RateLimitMax)
	case cfg.RateLimitWindow <= 0:
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	case cfg.RateLimitSweepInterval < 0:
		return Config{}, fmt.Errorf("RATE_LIMIT_SWEEP_INTERVAL must not be negative, got %s", cfg.RateLimitSweepInterval)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
