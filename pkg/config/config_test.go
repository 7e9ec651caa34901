package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"matrix": {"enabled": true, "homeserver": "https://matrix.example.com", "user_id": "@tipbot:example.com", "password": "secret"}},
	  "lnbits": {"url": "https://lnbits.example.com", "api_key": "key"},
	  "database": {"url": "tipbot.db"},
	  "donations": {"user": "@dev:example.com", "btc_address": "bc1qexample"},
	  "gateway": {"host": "0.0.0.0", "port": 18790},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`)

	t.Setenv("TIPBOT_CONFIG", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.AddSource)
	require.Equal(t, "@tipbot:example.com", cfg.Channels.Matrix.UserID)
	require.Equal(t, "@dev:example.com", cfg.Donations.User)
	require.Equal(t, 18790, cfg.Gateway.Port)
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("TIPBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
	  "channels": {"telegram": {"enabled": true}},
	  "lnbits": {"url": "https://lnbits.example.com"},
	  "database": {"url": "tipbot.db"}
	}`)

	t.Setenv("TIPBOT_CONFIG", path)
	t.Setenv("LNBITS_API_KEY", "from-env")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_ALLOW_FROM", " 1, ,2 ")
	t.Setenv("DONATE_USER", "@dev:example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.LNbits.APIKey)
	require.Equal(t, "token", cfg.Channels.Telegram.Token)
	require.Equal(t, []string{"1", "2"}, cfg.Channels.Telegram.AllowFrom)
	require.Equal(t, "@dev:example.com", cfg.Donations.User)
}

func TestValidateReportsEveryMissingField(t *testing.T) {
	cfg := &Config{Channels: ChannelsConfig{Matrix: MatrixConfig{Enabled: true}}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"lnbits.url is required",
		"lnbits.api_key is required",
		"database.url is required",
		"channels.matrix.homeserver is required",
		"channels.matrix.user_id is required",
	} {
		require.ErrorContains(t, err, want)
	}
}
