// Package config loads process settings from the environment and the static
// site description from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DBPath       string `env:"DB_PATH" envDefault:"finboard.db"`
	TemplateDir  string `env:"TEMPLATE_DIR"` // empty means the embedded templates
	StaticDir    string `env:"STATIC_DIR"`
	SiteConfig   string `env:"SITE_CONFIG" envDefault:"site.toml"`
	JWTSecret    string `env:"JWT_SECRET"`
	SecureCookie bool   `env:"SECURE_COOKIE" envDefault:"false"`

	// CORSOrigins may call the JSON API from a browser.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	SuspenseWait      time.Duration `env:"SUSPENSE_WAIT" envDefault:"150ms"`
	RecurringInterval time.Duration `env:"RECURRING_INTERVAL" envDefault:"1h"`

	Log Log

	AdminUser     string `env:"ADMIN_USER"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Log configures logrus.
type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

// Site is the static description of the web site and its theme.
type Site struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Locale      string `toml:"locale"`
	Footer      string `toml:"footer"`
	Theme       Theme  `toml:"theme"`
}

// Theme holds the design tokens applied to every page.
type Theme struct {
	PrimaryColor string `toml:"primary_color"`
	BorderRadius int    `toml:"border_radius"`
}

// DefaultSite returns the built-in site description.
func DefaultSite() Site {
	return Site{
		Title:       "个人财务管理",
		Description: "资产、预算、目标与投资的一站式管理",
		Locale:      "zh-CN",
		Footer:      "个人财务管理 ©2024",
		Theme: Theme{
			PrimaryColor: "#1677ff",
			BorderRadius: 6,
		},
	}
}

// LoadSite reads the site description at path. A missing file yields the
// defaults; fields absent from the file keep their default values.
func LoadSite(path string) (Site, error) {
	site := DefaultSite()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return site, nil
	}
	if _, err := toml.DecodeFile(path, &site); err != nil {
		return site, fmt.Errorf("decode %s: %w", path, err)
	}
	return site, nil
}
