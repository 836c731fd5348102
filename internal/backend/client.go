// Package backend queries Blockbook servers for account information: the
// balance and transaction history behind an xpub, output descriptor or
// address.
package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrz1836/scout/internal/config"
	"github.com/mrz1836/scout/internal/metrics"
	"github.com/mrz1836/scout/internal/retry"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

const (
	// httpTimeout is the default HTTP request timeout.
	httpTimeout = 30 * time.Second

	// maxResponseBody is the maximum response body size to read (4 MB).
	maxResponseBody = 4 << 20

	// pageSize caps the number of txids returned per account.
	pageSize = 50
)

// Detail levels accepted in AccountInfoRequest.Details.
const (
	DetailsBasic  = "basic"
	DetailsTokens = "tokens"
	DetailsTxids  = "txids"
	DetailsTxs    = "txs"
)

// AccountInfoRequest asks for the state of one account.
type AccountInfoRequest struct {
	Symbol     string
	Descriptor string

	// UseEmptyPassphrase mirrors the device request flag: the descriptor was
	// derived without prompting for a passphrase.
	UseEmptyPassphrase bool

	// Details selects how much history is returned (basic, tokens, txids, txs).
	Details string
}

// AccountInfo is the state of one account.
type AccountInfo struct {
	Descriptor   string   `json:"descriptor"`
	Balance      string   `json:"balance"`
	TxCount      int      `json:"tx_count"`
	Transactions []string `json:"transactions,omitempty"`

	// Empty is true when the account has never been used.
	Empty bool `json:"empty"`
}

// blockbookAccount is the subset of the Blockbook /api/v2/xpub and
// /api/v2/address responses scout uses.
type blockbookAccount struct {
	Balance        string   `json:"balance"`
	Txs            int      `json:"txs"`
	UnconfirmedTxs int      `json:"unconfirmedTxs"`
	Txids          []string `json:"txids"`
	Error          string   `json:"error"`
}

// Client is a Blockbook client covering several networks.
// It is safe for concurrent use.
type Client struct {
	urls        map[string]string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retry       retry.Config
	logger      *config.Logger
}

// ClientOptions configures the client.
type ClientOptions struct {
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	RatePerSecond float64
	Burst         int

	// Retry overrides the default retry policy for retryable failures.
	Retry *retry.Config

	Logger *config.Logger
}

// NewClient creates a client. urls maps a network symbol to a Blockbook
// base URL.
func NewClient(urls map[string]string, opts *ClientOptions) *Client {
	c := &Client{
		urls: make(map[string]string, len(urls)),
		httpClient: &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		rateLimiter: NewRateLimiter(5, 10),
		retry:       retry.DefaultConfig(),
		logger:      config.NullLogger(),
	}
	for symbol, u := range urls {
		c.urls[strings.ToLower(symbol)] = strings.TrimRight(u, "/")
	}

	if opts != nil {
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		if opts.RatePerSecond > 0 && opts.Burst > 0 {
			c.rateLimiter = NewRateLimiter(opts.RatePerSecond, opts.Burst)
		}
		if opts.Retry != nil {
			c.retry = *opts.Retry
		}
		if opts.Logger != nil {
			c.logger = opts.Logger.Named("backend")
		}
	}
	return c
}

// FromConfig creates a client from the backend section of cfg.
func FromConfig(cfg *config.Config, logger *config.Logger) *Client {
	return NewClient(cfg.Backend.URLs, &ClientOptions{
		HTTPClient: &http.Client{
			Timeout: cfg.Backend.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		RatePerSecond: cfg.Backend.RatePerSecond,
		Burst:         cfg.Backend.Burst,
		Logger:        logger,
	})
}

// Supports reports whether a backend URL is configured for symbol.
func (c *Client) Supports(symbol string) bool {
	_, ok := c.urls[strings.ToLower(symbol)]
	return ok
}

// GetAccountInfo fetches the account behind req.Descriptor. Rate limiting
// and server errors are retried; other failures are returned as is.
func (c *Client) GetAccountInfo(ctx context.Context, req AccountInfoRequest) (*AccountInfo, error) {
	symbol := strings.ToLower(req.Symbol)
	base, ok := c.urls[symbol]
	if !ok {
		return nil, scouterr.WithDetails(scouterr.ErrBackendUnavailable, map[string]string{"network": symbol})
	}

	endpoint := accountURL(base, req)

	start := time.Now()
	acct, err := retry.Do(ctx, c.retry, func() (*blockbookAccount, error) {
		if werr := c.rateLimiter.Wait(ctx, symbol); werr != nil {
			return nil, werr
		}
		return c.fetch(ctx, endpoint)
	})
	metrics.Global.RecordBackendCall(time.Since(start), err)
	if err != nil {
		c.logger.Debug("%s: account info failed: %v", symbol, err)
		return nil, err
	}

	return &AccountInfo{
		Descriptor:   req.Descriptor,
		Balance:      acct.Balance,
		TxCount:      acct.Txs,
		Transactions: acct.Txids,
		Empty:        acct.Txs == 0 && acct.UnconfirmedTxs == 0,
	}, nil
}

// accountURL selects the xpub endpoint for extended keys and descriptors and
// the address endpoint otherwise.
func accountURL(base string, req AccountInfoRequest) string {
	kind := "address"
	if isExtendedKey(req.Descriptor) {
		kind = "xpub"
	}

	q := url.Values{}
	q.Set("details", blockbookDetails(req.Details))
	q.Set("pageSize", fmt.Sprintf("%d", pageSize))

	return fmt.Sprintf("%s/api/v2/%s/%s?%s", base, kind, url.PathEscape(req.Descriptor), q.Encode())
}

func isExtendedKey(descriptor string) bool {
	if strings.Contains(descriptor, "(") {
		return true
	}
	if len(descriptor) < 4 {
		return false
	}
	switch descriptor[1:4] {
	case "pub", "gub":
		return true
	default:
		return false
	}
}

// blockbookDetails maps a request detail level onto Blockbook's. Full
// transactions are reduced to txids: only ids are kept.
func blockbookDetails(details string) string {
	switch details {
	case DetailsBasic, DetailsTokens, DetailsTxids:
		return details
	case DetailsTxs:
		return DetailsTxids
	default:
		return DetailsBasic
	}
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*blockbookAccount, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL is constructed from config
	if err != nil {
		return nil, retry.Wrap(scouterr.WithCause(scouterr.ErrNetworkError, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, retry.Wrap(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Honor Retry-After up to the retry ceiling; the backoff follows.
		if wait := retry.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			_ = retry.Sleep(ctx, min(wait, c.retry.MaxDelay))
		}
		return nil, retry.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, retry.Wrap(scouterr.WithDetails(scouterr.ErrBackendUnavailable, map[string]string{
			"status": fmt.Sprintf("%d", resp.StatusCode),
		}))
	case resp.StatusCode != http.StatusOK:
		return nil, scouterr.WithDetails(scouterr.ErrNetworkError, map[string]string{
			"status": fmt.Sprintf("%d", resp.StatusCode),
			"body":   truncateBody(string(body), 256),
		})
	}

	var acct blockbookAccount
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if acct.Error != "" {
		return nil, scouterr.WithDetails(scouterr.ErrNetworkError, map[string]string{"error": acct.Error})
	}
	return &acct, nil
}

// truncateBody truncates a string to maxLen characters.
func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
