package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envConfigPath        = "TIPBOT_CONFIG"
	envMatrixPassword    = "MATRIX_PASSWORD"
	envMatrixAccessToken = "MATRIX_ACCESS_TOKEN"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envLNbitsURL         = "LNBITS_URL"
	envLNbitsAPIKey      = "LNBITS_API_KEY"
	envDatabaseURL       = "DATABASE_URL"
	envDonateUser        = "DONATE_USER"
	envAppserviceHSToken = "APPSERVICE_HS_TOKEN"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	LNbits    LNbitsConfig    `json:"lnbits"`
	Database  DatabaseConfig  `json:"database"`
	Rates     RatesConfig     `json:"rates,omitempty"`
	Donations DonationsConfig `json:"donations,omitempty"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Matrix   MatrixConfig   `json:"matrix"`
	Telegram TelegramConfig `json:"telegram"`
}

// MatrixConfig configures the Matrix channel integration.
type MatrixConfig struct {
	Enabled     bool   `json:"enabled"`
	Homeserver  string `json:"homeserver"`
	UserID      string `json:"user_id"`
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// LNbitsConfig points at the custodial wallet service.
type LNbitsConfig struct {
	URL                   string `json:"url"`
	APIKey                string `json:"api_key"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// DatabaseConfig selects the identity mapping store. A postgres:// URL uses
// postgres, anything else is treated as a sqlite file path.
type DatabaseConfig struct {
	URL string `json:"url"`
}

// RatesConfig configures the fiat exchange-rate source.
type RatesConfig struct {
	BaseURL         string `json:"base_url,omitempty"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds,omitempty"`
}

// DonationsConfig holds the optional donation recipient and the address
// advertised in the help text.
type DonationsConfig struct {
	User       string `json:"user,omitempty"`
	BTCAddress string `json:"btc_address,omitempty"`
}

// GatewayConfig configures the status / application-service HTTP bind settings.
type GatewayConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	HSToken string `json:"hs_token,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings every gateway run needs.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.LNbits.URL) == "" {
		errs = append(errs, errors.New("lnbits.url is required"))
	}
	if strings.TrimSpace(c.LNbits.APIKey) == "" {
		errs = append(errs, errors.New("lnbits.api_key is required"))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database.url is required"))
	}

	if c.Channels.Matrix.Enabled {
		m := c.Channels.Matrix
		if strings.TrimSpace(m.Homeserver) == "" {
			errs = append(errs, errors.New("channels.matrix.homeserver is required"))
		}
		if strings.TrimSpace(m.UserID) == "" {
			errs = append(errs, errors.New("channels.matrix.user_id is required"))
		}
		if strings.TrimSpace(m.Password) == "" && strings.TrimSpace(m.AccessToken) == "" {
			errs = append(errs, errors.New("channels.matrix.password or channels.matrix.access_token is required"))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	overrideString(&cfg.Channels.Matrix.Password, envMatrixPassword)
	overrideString(&cfg.Channels.Matrix.AccessToken, envMatrixAccessToken)
	overrideString(&cfg.Channels.Telegram.Token, envTelegramBotToken)
	overrideString(&cfg.LNbits.URL, envLNbitsURL)
	overrideString(&cfg.LNbits.APIKey, envLNbitsAPIKey)
	overrideString(&cfg.Database.URL, envDatabaseURL)
	overrideString(&cfg.Donations.User, envDonateUser)
	overrideString(&cfg.Gateway.HSToken, envAppserviceHSToken)

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

func overrideString(target *string, env string) {
	if value := strings.TrimSpace(os.Getenv(env)); value != "" {
		*target = value
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TIPBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
