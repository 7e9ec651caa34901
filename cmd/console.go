package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"tipbot/pkg/channel"
	"tipbot/pkg/channel/console"
	"tipbot/pkg/config"
	"tipbot/pkg/gateway"
	"tipbot/pkg/logger"
	"tipbot/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var (
	consoleSender  string
	consoleMembers []string
	consoleQRDir   string
	consolePlain   bool
	consoleOnce    string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Type commands locally as one chat identity",
	Long:  "Runs the command pipeline against stdin and stdout, using the configured wallet service and store. Useful for trying commands without a chat server.",
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		app, err := buildCore(ctx, cfg, appLogger)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.wallet.Health(ctx); err != nil {
			return fmt.Errorf("wallet service health check: %w", err)
		}

		adapter, err := console.NewAdapter(console.Options{
			Sender:  consoleSender,
			Members: consoleMembers,
			QRDir:   consoleQRDir,
		}, cmd.InOrStdin(), cmd.OutOrStdout(), appLogger)
		if err != nil {
			return err
		}

		svc, err := gateway.NewService(cfg, []channel.Adapter{adapter}, app.deps(), appLogger)
		if err != nil {
			return err
		}

		if consolePlain {
			return adapter.Run(ctx, svc.Handler())
		}

		send := consoleSend(adapter, svc.Handler())
		info := chat.Info{Sender: adapter.Sender(), Wallet: cfg.LNbits.URL, Version: Version}
		if once := strings.TrimSpace(consoleOnce); once != "" {
			return chat.RunOneShot(ctx, send, info, once)
		}
		return chat.RunInteractive(ctx, send, info, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleSender, "as", "@me:localhost", "chat identity the typed commands are sent as")
	consoleCmd.Flags().StringSliceVar(&consoleMembers, "member", nil, "other identities in the room, for name lookups (repeatable)")
	consoleCmd.Flags().StringVar(&consoleQRDir, "qr-dir", "", "directory to write invoice QR codes to")
	consoleCmd.Flags().BoolVar(&consolePlain, "plain", false, "read commands line by line instead of the full-screen UI")
	consoleCmd.Flags().StringVarP(&consoleOnce, "command", "c", "", "send one command, print the reply and exit")
}

// consoleSend adapts the console channel to the interactive UI.
func consoleSend(adapter *console.Adapter, handler channel.Handler) chat.SendFunc {
	return func(ctx context.Context, text string) (chat.Reply, error) {
		result := adapter.Submit(ctx, handler, text)
		outbound := result.Outbound

		reply := chat.Reply{Text: outbound.Content}
		if reply.Text == "" && outbound.Error != "" {
			reply = chat.Reply{Text: outbound.Error, Failed: true}
		}
		switch {
		case result.QRPath != "":
			reply.Note = "QR code written to " + result.QRPath
		case len(outbound.Image) > 0:
			reply.Note = "QR code available, pass --qr-dir to save it"
		}

		return reply, ctx.Err()
	}
}
