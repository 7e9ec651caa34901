// Package wallet maps chat identities to wallet-service wallets, creating
// them on first use.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tipbot/pkg/lnbits"
	"tipbot/pkg/logger"
	"tipbot/pkg/store"
)

// ErrWalletCount is returned when the wallet service does not report exactly
// one wallet for a mapped user.
var ErrWalletCount = errors.New("expected exactly one wallet")

// Handle is the wallet a command acts on.
type Handle struct {
	ChatID string
	UserID string
	Wallet lnbits.Wallet
}

// Store is the identity mapping persistence the provisioner needs.
type Store interface {
	Lookup(ctx context.Context, chatID string) (store.Mapping, error)
	Insert(ctx context.Context, m store.Mapping) (bool, error)
}

// API is the subset of the wallet service used for provisioning.
type API interface {
	CreateUser(ctx context.Context, req lnbits.CreateUserRequest) (lnbits.User, error)
	Wallets(ctx context.Context, userID string) ([]lnbits.Wallet, error)
}

// Provisioner resolves chat identities to wallets. First-use creation is
// collapsed per identity, and the store's unique key settles any race with
// another process.
type Provisioner struct {
	store Store
	api   API
	log   *slog.Logger
	group singleflight.Group

	now        func() time.Time
	newAdminID func() string
}

func NewProvisioner(s Store, api API, log *slog.Logger) *Provisioner {
	return &Provisioner{
		store:      s,
		api:        api,
		log:        logger.Component(log, "wallet.provisioner"),
		now:        time.Now,
		newAdminID: func() string { return uuid.NewString() },
	}
}

// EnsureWallet returns the wallet for chatID, creating the wallet-service
// user and persisting the mapping when none exists yet.
func (p *Provisioner) EnsureWallet(ctx context.Context, chatID string) (Handle, error) {
	mapping, err := p.ensureMapping(ctx, chatID)
	if err != nil {
		return Handle{}, err
	}

	wallets, err := p.api.Wallets(ctx, mapping.WalletUserID)
	if err != nil {
		return Handle{}, fmt.Errorf("look up wallet for %s: %w", chatID, err)
	}
	if len(wallets) != 1 {
		return Handle{}, fmt.Errorf("%w for %s: got %d", ErrWalletCount, chatID, len(wallets))
	}

	return Handle{ChatID: chatID, UserID: mapping.WalletUserID, Wallet: wallets[0]}, nil
}

func (p *Provisioner) ensureMapping(ctx context.Context, chatID string) (store.Mapping, error) {
	mapping, err := p.store.Lookup(ctx, chatID)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Mapping{}, err
	}

	// The shared call outlives any single waiter's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(chatID, func() (any, error) {
		return p.provision(shared, chatID)
	})
	if err != nil {
		return store.Mapping{}, err
	}

	return v.(store.Mapping), nil
}

func (p *Provisioner) provision(ctx context.Context, chatID string) (store.Mapping, error) {
	// Another caller may have finished between our lookup and entering the group.
	mapping, err := p.store.Lookup(ctx, chatID)
	if err == nil {
		return mapping, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Mapping{}, fmt.Errorf("look up wallet mapping for %s: %w", chatID, err)
	}

	adminID := p.newAdminID()
	user, err := p.api.CreateUser(ctx, lnbits.CreateUserRequest{
		WalletName: chatID + "wallet",
		AdminID:    adminID,
		UserName:   chatID,
	})
	if err != nil {
		return store.Mapping{}, fmt.Errorf("provision wallet for %s: %w", chatID, err)
	}

	admin := user.Admin
	if admin == "" {
		admin = adminID
	}

	mapping = store.Mapping{
		ChatID:        chatID,
		WalletUserID:  user.ID,
		WalletAdminID: admin,
		CreatedAt:     p.now(),
	}
	inserted, err := p.store.Insert(ctx, mapping)
	if err != nil {
		return store.Mapping{}, fmt.Errorf("persist wallet mapping for %s: %w", chatID, err)
	}
	if !inserted {
		p.log.Warn("Mapping created concurrently, discarding new wallet user", "chat_id", chatID, "wallet_user_id", user.ID)
		return p.store.Lookup(ctx, chatID)
	}

	p.log.Info("Provisioned wallet", "chat_id", chatID, "wallet_user_id", user.ID)
	return mapping, nil
}
