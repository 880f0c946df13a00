package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/fhir-gateway/internal/platform/fhir"
)

// Upstream auth modes.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthJWT    = "jwt"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`

	FHIRURL          string        `mapstructure:"FHIR_URL"`
	UpstreamTimeout  time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UpstreamMaxPages int           `mapstructure:"UPSTREAM_MAX_PAGES"`

	UpstreamAuthMode   string `mapstructure:"UPSTREAM_AUTH_MODE"`
	UpstreamToken      string `mapstructure:"UPSTREAM_TOKEN"`
	UpstreamClientID   string `mapstructure:"UPSTREAM_CLIENT_ID"`
	UpstreamSigningKey string `mapstructure:"UPSTREAM_SIGNING_KEY"`

	BreakerEnabled  bool          `mapstructure:"UPSTREAM_BREAKER_ENABLED"`
	BreakerFailures uint32        `mapstructure:"UPSTREAM_BREAKER_FAILURES"`
	BreakerCooldown time.Duration `mapstructure:"UPSTREAM_BREAKER_COOLDOWN"`

	PatchNullPolicy string `mapstructure:"PATCH_NULL_POLICY"`

	TracingEnabled    bool    `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint      string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRate float64 `mapstructure:"TRACING_SAMPLE_RATE"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"PORT":                      "8000",
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"BODY_LIMIT":                "1Mi",
	"REQUEST_TIMEOUT":           "60s",
	"CORS_ORIGINS":              "*",
	"FHIR_URL":                  "http://localhost:8080/fhir",
	"UPSTREAM_TIMEOUT":          "30s",
	"UPSTREAM_MAX_PAGES":        10,
	"UPSTREAM_AUTH_MODE":        AuthNone,
	"UPSTREAM_BREAKER_ENABLED":  false,
	"UPSTREAM_BREAKER_FAILURES": 5,
	"UPSTREAM_BREAKER_COOLDOWN": "30s",
	"PATCH_NULL_POLICY":         "drop",
	"TRACING_ENABLED":           false,
	"TRACING_SAMPLE_RATE":       1.0,
	"SHUTDOWN_TIMEOUT":          "10s",
}

// Load reads the configuration from the environment, falling back to a .env
// file in the working directory when one exists.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Unmarshal only sees keys viper knows about; variables without a
	// default must be bound explicitly.
	for _, key := range []string{"UPSTREAM_TOKEN", "UPSTREAM_CLIENT_ID", "UPSTREAM_SIGNING_KEY", "OTLP_ENDPOINT"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	return cfg, nil
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

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects settings the gateway cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.FHIRURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FHIR_URL must be an absolute http(s) URL, got %q", c.FHIRURL)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	if c.UpstreamMaxPages <= 0 {
		return fmt.Errorf("UPSTREAM_MAX_PAGES must be positive, got %d", c.UpstreamMaxPages)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}

	switch c.UpstreamAuthMode {
	case AuthNone:
	case AuthBearer:
		if c.UpstreamToken == "" {
			return fmt.Errorf("UPSTREAM_TOKEN is required when UPSTREAM_AUTH_MODE is %q", AuthBearer)
		}
	case AuthJWT:
		if c.UpstreamClientID == "" {
			return fmt.Errorf("UPSTREAM_CLIENT_ID is required when UPSTREAM_AUTH_MODE is %q", AuthJWT)
		}
		if _, err := c.SigningKey(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("UPSTREAM_AUTH_MODE must be %q, %q or %q, got %q", AuthNone, AuthBearer, AuthJWT, c.UpstreamAuthMode)
	}

	if c.BreakerEnabled {
		if c.BreakerFailures == 0 {
			return fmt.Errorf("UPSTREAM_BREAKER_FAILURES must be positive when the breaker is enabled")
		}
		if c.BreakerCooldown <= 0 {
			return fmt.Errorf("UPSTREAM_BREAKER_COOLDOWN must be positive when the breaker is enabled")
		}
	}

	if _, err := c.NullPolicy(); err != nil {
		return fmt.Errorf("PATCH_NULL_POLICY: %w", err)
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1, got %g", c.TracingSampleRate)
	}
	return nil
}

// SigningKey decodes UPSTREAM_SIGNING_KEY. The key must be at least 32 bytes
// (64 hex chars).
func (c *Config) SigningKey() ([]byte, error) {
	key, err := hex.DecodeString(c.UpstreamSigningKey)
	if err != nil {
		return nil, fmt.Errorf("UPSTREAM_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("UPSTREAM_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

func (c *Config) NullPolicy() (fhir.NullPolicy, error) {
	return fhir.ParseNullPolicy(c.PatchNullPolicy)
}

// Level is the parsed LOG_LEVEL, info when unparseable.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
