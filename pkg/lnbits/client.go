// Package lnbits is a client for the LNbits user-manager and wallet APIs.
package lnbits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tipbot/pkg/config"
	"tipbot/pkg/logger"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 1 << 20
	apiKeyHeader          = "X-Api-Key"

	usersPath    = "/usermanager/api/v1/users"
	walletsPath  = "/usermanager/api/v1/wallets/"
	walletPath   = "/api/v1/wallet"
	paymentsPath = "/api/v1/payments"
	healthPath   = "/api/v1/health"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lnbits %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("lnbits %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// CreateUserRequest is the user-manager payload for a new user with one wallet.
type CreateUserRequest struct {
	WalletName string `json:"wallet_name"`
	AdminID    string `json:"admin_id"`
	UserName   string `json:"user_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type User struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Admin   string   `json:"admin"`
	Email   string   `json:"email"`
	Wallets []Wallet `json:"wallets,omitempty"`
}

// Wallet carries the keys needed to act on a wallet. AdminKey authorises
// outgoing payments; InKey is the invoice/read key.
type Wallet struct {
	ID       string `json:"id"`
	Admin    string `json:"admin"`
	Name     string `json:"name"`
	User     string `json:"user"`
	AdminKey string `json:"adminkey"`
	InKey    string `json:"inkey"`
	Balance  *int64 `json:"balance_msat,omitempty"`
}

// WalletInfo is the wallet details response. Balance is in millisatoshi and
// may be absent.
type WalletInfo struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Balance *int64 `json:"balance,omitempty"`
}

type Invoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

type createInvoiceRequest struct {
	Out    bool   `json:"out"`
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
	Memo   string `json:"memo"`
}

type payRequest struct {
	Out    bool   `json:"out"`
	Bolt11 string `json:"bolt11"`
}

// Client talks to one LNbits instance. The admin key from config is used
// for user management; wallet calls use the wallet's own keys.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// New builds a client from config.
func New(cfg config.LNbitsConfig, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.URL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse lnbits url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("lnbits url must be absolute: %q", cfg.URL)
	}

	timeout := defaultRequestTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     logger.Component(log, "lnbits.client"),
	}, nil
}

// CreateUser creates a user and its first wallet.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, usersPath, c.apiKey, req, &user); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	if user.ID == "" {
		return User{}, fmt.Errorf("create user: response has no user id")
	}

	c.log.Info("Created wallet user", "wallet_name", req.WalletName, "user_id", user.ID)
	return user, nil
}

// Wallets lists the wallets owned by userID.
func (c *Client) Wallets(ctx context.Context, userID string) ([]Wallet, error) {
	var wallets []Wallet
	if err := c.do(ctx, http.MethodGet, walletsPath+url.PathEscape(userID), c.apiKey, nil, &wallets); err != nil {
		return nil, fmt.Errorf("list wallets for %s: %w", userID, err)
	}

	return wallets, nil
}

// WalletInfo reads the wallet details, including its balance.
func (c *Client) WalletInfo(ctx context.Context, wallet Wallet) (WalletInfo, error) {
	var info WalletInfo
	if err := c.do(ctx, http.MethodGet, walletPath, wallet.InKey, nil, &info); err != nil {
		return WalletInfo{}, fmt.Errorf("wallet info: %w", err)
	}

	return info, nil
}

// CreateInvoice issues an incoming invoice on wallet. LNbits takes whole
// satoshi, so amountMsat is rounded down.
func (c *Client) CreateInvoice(ctx context.Context, wallet Wallet, amountMsat uint64, memo string) (Invoice, error) {
	body := createInvoiceRequest{Out: false, Amount: amountMsat / 1000, Unit: "sat", Memo: memo}

	var invoice Invoice
	if err := c.do(ctx, http.MethodPost, paymentsPath, wallet.InKey, body, &invoice); err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	if invoice.PaymentRequest == "" {
		return Invoice{}, fmt.Errorf("create invoice: response has no payment request")
	}

	return invoice, nil
}

// Pay settles a payment request from wallet.
func (c *Client) Pay(ctx context.Context, wallet Wallet, paymentRequest string) error {
	body := payRequest{Out: true, Bolt11: paymentRequest}

	var resp struct {
		PaymentHash string `json:"payment_hash"`
	}
	if err := c.do(ctx, http.MethodPost, paymentsPath, wallet.AdminKey, body, &resp); err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}

	c.log.Debug("Paid invoice", "wallet_id", wallet.ID, "payment_hash", resp.PaymentHash)
	return nil
}

// Health checks that the wallet service answers.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, healthPath, c.apiKey, nil, nil); err != nil {
		return fmt.Errorf("lnbits health: %w", err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, key string, in any, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set(apiKeyHeader, key)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
