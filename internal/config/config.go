package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `env:"LOG_FORMAT" validate:"omitempty,oneof=json console"`

	TMS      TMS      `envPrefix:"TMS_"`
	Tracking Tracking `envPrefix:"TRACKING_"`

	WarehouseLocationID string `env:"MEIJER_LOCATION_ID" envDefault:"407987" validate:"required,numeric"`
	ResolverPolicy      string `env:"RESOLVER_POLICY" envDefault:"live" validate:"oneof=stub hash live"`

	ImportTimeout time.Duration `env:"IMPORT_TIMEOUT" envDefault:"30m"`

	EnableMetrics bool   `env:"ENABLE_METRICS" envDefault:"true"`
	EnableSwagger bool   `env:"ENABLE_SWAGGER" envDefault:"false"`
	AuthEnabled   bool   `env:"AUTH_ENABLED" envDefault:"false"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISS" envDefault:"tms-provisioning-api"`
	JWTAudience   string `env:"JWT_AUD" envDefault:"tms-provisioning-api"`

	DatabaseURL string `env:"DB_DSN"`
}

// TMS holds the portal connection and service account
type TMS struct {
	BaseURL        string        `env:"BASE_URL" envDefault:"https://tms.freightapp.com" validate:"required,url"`
	Username       string        `env:"USER" validate:"required"`
	PasswordBase64 string        `env:"PASS_BASE64" validate:"required,base64"`
	LoginURL       string        `env:"LOGIN_URL" envDefault:"https://ship.unisco.com/v2/index.html#/login" validate:"required"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10s"`
	ProfilePath    string        `env:"PROFILE_PATH"`
}

// Tracking holds the optional PO-to-PRO lookup service
type Tracking struct {
	URL   string `env:"URL" validate:"omitempty,url"`
	Token string `env:"TOKEN"`
}

// Load reads configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.TMS.BaseURL = strings.TrimRight(cfg.TMS.BaseURL, "/")
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the rules that span fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.TMS.Timeout <= 0 {
		return errors.New("TMS_TIMEOUT must be positive")
	}
	if c.TMS.Timeout > 2*time.Minute {
		return errors.New("TMS_TIMEOUT must not exceed 2m")
	}
	if c.ImportTimeout < 0 {
		return errors.New("IMPORT_TIMEOUT must not be negative")
	}

	if c.AuthEnabled {
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters when AUTH_ENABLED is set")
		}
		if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed in production")
		}
		if c.JWTIssuer == "" || c.JWTAudience == "" {
			return errors.New("JWT_ISS and JWT_AUD are required when AUTH_ENABLED is set")
		}
	}
	return nil
}

// LoadAndValidate loads the configuration and validates it
func LoadAndValidate() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

