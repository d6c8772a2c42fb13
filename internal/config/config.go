package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret        string   `mapstructure:"JWT_SECRET"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
	SlotMinutes      int      `mapstructure:"SLOT_MINUTES"`
	ConsultMinutes   int      `mapstructure:"CONSULTATION_MINUTES"`
	MaxSlotsPerShift int      `mapstructure:"MAX_SLOTS_PER_SHIFT"`
	MaxPerDay        int      `mapstructure:"MAX_APPOINTMENTS_PER_DAY"`
	CancelBeforeHrs  int      `mapstructure:"CANCEL_BEFORE_HOURS"`
	ExaminationFee   int64    `mapstructure:"EXAMINATION_FEE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SLOT_MINUTES", 15)
	v.SetDefault("CONSULTATION_MINUTES", 30)
	v.SetDefault("MAX_SLOTS_PER_SHIFT", 20)
	v.SetDefault("MAX_APPOINTMENTS_PER_DAY", 40)
	v.SetDefault("CANCEL_BEFORE_HOURS", 2)
	v.SetDefault("EXAMINATION_FEE", 100000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SLOT_MINUTES")
	v.BindEnv("CONSULTATION_MINUTES")
	v.BindEnv("MAX_SLOTS_PER_SHIFT")
	v.BindEnv("MAX_APPOINTMENTS_PER_DAY")
	v.BindEnv("CANCEL_BEFORE_HOURS")
	v.BindEnv("EXAMINATION_FEE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a
// JWT_SECRET is required so bearer tokens can actually be verified, and the
// booking policy values must be coherent with each other.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("SLOT_MINUTES must be positive, got %d", c.SlotMinutes)
	}
	if c.ConsultMinutes < c.SlotMinutes {
		return fmt.Errorf("CONSULTATION_MINUTES (%d) must be at least SLOT_MINUTES (%d)",
			c.ConsultMinutes, c.SlotMinutes)
	}
	if c.MaxSlotsPerShift <= 0 {
		return fmt.Errorf("MAX_SLOTS_PER_SHIFT must be positive, got %d", c.MaxSlotsPerShift)
	}
	if c.MaxPerDay < c.MaxSlotsPerShift {
		return fmt.Errorf("MAX_APPOINTMENTS_PER_DAY (%d) must be at least MAX_SLOTS_PER_SHIFT (%d)",
			c.MaxPerDay, c.MaxSlotsPerShift)
	}
	if c.CancelBeforeHrs < 0 {
		return fmt.Errorf("CANCEL_BEFORE_HOURS must not be negative, got %d", c.CancelBeforeHrs)
	}
	if c.ExaminationFee < 0 {
		return fmt.Errorf("EXAMINATION_FEE must not be negative, got %d", c.ExaminationFee)
	}
	return nil
}
