package lnurl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tipbot/pkg/logger"
)

const (
	payRequestTag      = "payRequest"
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

var (
	ErrNotPayRequest    = errors.New("lnurl endpoint is not a pay request")
	ErrAmountOutOfRange = errors.New("amount outside the range accepted by the recipient")
)

// PayParams is the first-step response of an LNURL-pay endpoint.
type PayParams struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	MinSendable    uint64 `json:"minSendable"`
	MaxSendable    uint64 `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed,omitempty"`
}

type statusResponse struct {
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type invoiceResponse struct {
	statusResponse
	PR string `json:"pr"`
}

// Client runs the two-step LNURL-pay flow over HTTP.
type Client struct {
	http *http.Client
	log  *slog.Logger
}

// NewClient returns a client; a nil httpClient gets a default with a timeout.
func NewClient(httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		http: httpClient,
		log:  logger.Component(log, "lnurl.client"),
	}
}

// FetchPayParams requests the pay parameters behind an address.
func (c *Client) FetchPayParams(ctx context.Context, addr Address) (PayParams, error) {
	var params struct {
		statusResponse
		PayParams
	}
	if err := c.getJSON(ctx, addr.URL, &params); err != nil {
		return PayParams{}, fmt.Errorf("fetch pay params for %s: %w", addr.Raw, err)
	}
	if params.Status == "ERROR" {
		return PayParams{}, fmt.Errorf("fetch pay params for %s: %s", addr.Raw, params.Reason)
	}
	if params.Tag != payRequestTag {
		return PayParams{}, fmt.Errorf("%w: tag %q", ErrNotPayRequest, params.Tag)
	}
	if params.Callback == "" {
		return PayParams{}, fmt.Errorf("%w: missing callback", ErrNotPayRequest)
	}

	return params.PayParams, nil
}

// RequestInvoice asks the callback for an invoice of amountMsat. The comment
// is only sent when the recipient accepts comments and is cut to the
// advertised length.
func (c *Client) RequestInvoice(ctx context.Context, params PayParams, amountMsat uint64, comment string) (string, error) {
	if params.MinSendable > 0 && amountMsat < params.MinSendable {
		return "", fmt.Errorf("%w: %d < %d msat", ErrAmountOutOfRange, amountMsat, params.MinSendable)
	}
	if params.MaxSendable > 0 && amountMsat > params.MaxSendable {
		return "", fmt.Errorf("%w: %d > %d msat", ErrAmountOutOfRange, amountMsat, params.MaxSendable)
	}

	callback, err := url.Parse(params.Callback)
	if err != nil {
		return "", fmt.Errorf("parse callback: %w", err)
	}

	query := callback.Query()
	query.Set("amount", strconv.FormatUint(amountMsat, 10))
	if comment != "" && params.CommentAllowed > 0 {
		runes := []rune(comment)
		if len(runes) > params.CommentAllowed {
			runes = runes[:params.CommentAllowed]
		}
		query.Set("comment", string(runes))
	}
	callback.RawQuery = query.Encode()

	var resp invoiceResponse
	if err := c.getJSON(ctx, callback.String(), &resp); err != nil {
		return "", fmt.Errorf("request invoice: %w", err)
	}
	if resp.Status == "ERROR" {
		return "", fmt.Errorf("request invoice: %s", resp.Reason)
	}
	if resp.PR == "" {
		return "", errors.New("request invoice: empty payment request")
	}

	c.log.Debug("Received invoice from external address", "amount_msat", amountMsat)
	return resp.PR, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
