package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file values, e.g.
// FINFEED_YAHOO_USER_AGENT sets yahoo.user_agent.
const EnvPrefix = "FINFEED_"

// DefaultFile is picked up from the working directory when Load gets no path.
const DefaultFile = "config.yaml"

type Server struct {
	Port              string `koanf:"port"`
	RequestTimeoutSec int    `koanf:"request_timeout_sec"`
}

type Yahoo struct {
	CookieURL      string `koanf:"cookie_url"`
	QuotePageURL   string `koanf:"quote_page_url"`
	Query1URL      string `koanf:"query1_url"`
	Query2URL      string `koanf:"query2_url"`
	CSVURL         string `koanf:"csv_url"`
	UserAgent      string `koanf:"user_agent"`
	CrumbTTLSec    int    `koanf:"crumb_ttl_sec"`
	HTTPTimeoutSec int    `koanf:"http_timeout_sec"`
	// DefaultTicker is the quote page used to acquire a crumb when a request
	// carries no ticker of its own (screener requests).
	DefaultTicker string `koanf:"default_ticker"`
}

type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Config struct {
	Server Server `koanf:"server"`
	Yahoo  Yahoo  `koanf:"yahoo"`
	Log    Log    `koanf:"log"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Yahoo: Yahoo{
			CookieURL:      "https://fc.yahoo.com",
			QuotePageURL:   "https://finance.yahoo.com/quote",
			Query1URL:      "https://query1.finance.yahoo.com",
			Query2URL:      "https://query2.finance.yahoo.com",
			CSVURL:         "https://finance.yahoo.com/d/quotes.csv",
			CrumbTTLSec:    3600,
			HTTPTimeoutSec: 15,
			DefaultTicker:  "AAPL",
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load reads YAML config from path (JSON files parse too). If path is empty
// and config.yaml exists it is used; a missing file yields defaults.
// FINFEED_* environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		_, err := os.Stat(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// envKey maps FINFEED_YAHOO_USER_AGENT to yahoo.user_agent. Only the first
// underscore separates section from key since keys contain underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// applyEnv honours the unprefixed PORT most hosting platforms inject.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" && os.Getenv(EnvPrefix+"SERVER_PORT") == "" {
		cfg.Server.Port = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.RequestTimeoutSec <= 0 {
		errs = append(errs, errors.New("server.request_timeout_sec must be positive"))
	}
	if c.Yahoo.CrumbTTLSec <= 0 {
		errs = append(errs, errors.New("yahoo.crumb_ttl_sec must be positive"))
	}
	if c.Yahoo.HTTPTimeoutSec <= 0 {
		errs = append(errs, errors.New("yahoo.http_timeout_sec must be positive"))
	}
	for name, u := range map[string]string{
		"yahoo.quote_page_url": c.Yahoo.QuotePageURL,
		"yahoo.query1_url":     c.Yahoo.Query1URL,
		"yahoo.query2_url":     c.Yahoo.Query2URL,
	} {
		if u == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
