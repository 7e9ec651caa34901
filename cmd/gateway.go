package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tipbot/pkg/channel"
	"tipbot/pkg/channel/matrix"
	"tipbot/pkg/channel/telegram"
	"tipbot/pkg/config"
	"tipbot/pkg/gateway"
	"tipbot/pkg/join"
	"tipbot/pkg/logger"
	"tipbot/pkg/txn"

	"github.com/spf13/cobra"
)

const (
	matrixChannelName   = "matrix"
	telegramChannelName = "telegram"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the bot against the enabled chat channels",
	Long:  "Connects to every enabled chat channel, processes payment commands and serves health, readiness and application-service endpoints.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := logger.Component(appLogger, "cmd.gateway")

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildCore(runCtx, cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize payment core", "error", err)
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				log.Warn("Failed to shut down payment core", "error", err)
			}
		}()

		adapters, err := enabledAdapters(cfg, gateway.WelcomeText(app.orchestrator.HelpText()), appLogger)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return err
		}

		svc, err := gateway.NewService(cfg, adapters, app.deps(), appLogger)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return err
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "version", Version)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Gateway runtime failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledAdapters(cfg *config.Config, welcome string, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Matrix.Enabled {
		adapter, err := matrix.NewAdapter(cfg.Channels.Matrix, matrix.Options{
			Joiner:      join.NewSupervisor(log),
			WelcomeText: welcome,
			Seen:        txn.NewCache(txn.DefaultCapacity),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", matrixChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
