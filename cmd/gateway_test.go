package cmd

import (
	"context"
	"testing"

	channelpkg "tipbot/pkg/channel"
	"tipbot/pkg/config"
	"tipbot/pkg/logger"

	"github.com/stretchr/testify/require"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(cfg, "welcome", logger.Discard()); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledAdaptersRejectsIncompleteMatrix(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Channels: config.ChannelsConfig{Matrix: config.MatrixConfig{Enabled: true}}}
	_, err := enabledAdapters(cfg, "welcome", logger.Discard())
	require.ErrorContains(t, err, "configure matrix channel")
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "matrix"}, testAdapter{name: "telegram"}}
	if got := enabledChannelNames(adapters); got != "matrix,telegram" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "matrix,telegram")
	}
}

func TestBuildCoreWiresSqliteStore(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LNbits:   config.LNbitsConfig{URL: "http://127.0.0.1:5000", APIKey: "key"},
		Database: config.DatabaseConfig{URL: "sqlite://" + t.TempDir() + "/tipbot.db"},
	}

	app, err := buildCore(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer app.Close()

	deps := app.deps()
	require.NotNil(t, deps.Parser)
	require.NotNil(t, deps.Executor)
	require.NotNil(t, deps.Wallet)
	require.NotNil(t, deps.Transactions)
}
