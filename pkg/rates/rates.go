// Package rates looks up bitcoin exchange rates from a CoinGecko-compatible API.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"

	"tipbot/pkg/config"
	"tipbot/pkg/logger"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com"
	defaultCacheTTL = 60 * time.Second
	defaultTimeout  = 15 * time.Second
	pricePath       = "/api/v3/simple/price"
	maxBodyBytes    = 1 << 16
)

// ErrInvalidRate is returned when the source has no usable rate for a currency.
var ErrInvalidRate = errors.New("no usable exchange rate")

// Source returns the price of one bitcoin in a fiat currency. Rates are
// cached per currency for a short TTL.
type Source struct {
	baseURL string
	ttl     time.Duration
	http    *http.Client
	cache   *ristretto.Cache
	log     *slog.Logger
}

func NewSource(cfg config.RatesConfig, log *slog.Logger) (*Source, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ttl := defaultCacheTTL
	if cfg.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create rate cache: %w", err)
	}

	return &Source{
		baseURL: baseURL,
		ttl:     ttl,
		http:    &http.Client{Timeout: defaultTimeout},
		cache:   cache,
		log:     logger.Component(log, "rates"),
	}, nil
}

// Rate returns fiat units per bitcoin for currency (e.g. "usd").
func (s *Source) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return decimal.Zero, fmt.Errorf("%w: empty currency", ErrInvalidRate)
	}

	if cached, ok := s.cache.Get(currency); ok {
		return cached.(decimal.Decimal), nil
	}

	rate, err := s.fetch(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}

	s.cache.SetWithTTL(currency, rate, 1, s.ttl)
	return rate, nil
}

func (s *Source) fetch(ctx context.Context, currency string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", "bitcoin")
	query.Set("vs_currencies", currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+pricePath+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch %s rate: %w", currency, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read %s rate: %w", currency, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch %s rate: unexpected status %d", currency, resp.StatusCode)
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &prices); err != nil {
		return decimal.Zero, fmt.Errorf("decode %s rate: %w", currency, err)
	}

	rate, ok := prices["bitcoin"][currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidRate, currency)
	}

	s.log.Debug("Fetched exchange rate", "currency", currency, "rate", rate.String())
	return rate, nil
}
