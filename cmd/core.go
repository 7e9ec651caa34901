package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"tipbot/pkg/bus"
	"tipbot/pkg/command"
	"tipbot/pkg/config"
	"tipbot/pkg/gateway"
	"tipbot/pkg/identity"
	"tipbot/pkg/lnbits"
	"tipbot/pkg/lnurl"
	"tipbot/pkg/payment"
	"tipbot/pkg/qr"
	"tipbot/pkg/rates"
	"tipbot/pkg/store"
	"tipbot/pkg/txn"
	"tipbot/pkg/wallet"
)

// core is everything a channel needs to turn messages into payments. Close
// releases the store and the bus.
type core struct {
	store        *store.Store
	wallet       *lnbits.Client
	parser       *command.Parser
	orchestrator *payment.Orchestrator
	bus          *bus.MessageBus
	transactions *txn.Cache
}

func buildCore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*core, error) {
	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	walletClient, err := lnbits.New(cfg.LNbits, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure lnbits: %w", err)
	}

	rateSource, err := rates.NewSource(cfg.Rates, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure rates: %w", err)
	}

	orchestrator := payment.New(
		wallet.NewProvisioner(db, walletClient, log),
		walletClient,
		lnurl.NewClient(nil, log),
		rateSource,
		payment.Options{
			Version:    Version,
			BTCAddress: cfg.Donations.BTCAddress,
			DonateUser: cfg.Donations.User,
			QR:         qr.PNG,
		},
		log,
	)

	return &core{
		store:        db,
		wallet:       walletClient,
		parser:       command.NewParser(identity.NewResolver(log), log),
		orchestrator: orchestrator,
		bus:          bus.NewMessageBus(),
		transactions: txn.NewCache(txn.DefaultCapacity),
	}, nil
}

func (c *core) deps() gateway.Deps {
	return gateway.Deps{
		Parser:       c.parser,
		Executor:     c.orchestrator,
		Wallet:       c.wallet,
		Bus:          c.bus,
		Transactions: c.transactions,
	}
}

func (c *core) Close() error {
	c.bus.Close()
	return c.store.Close()
}
