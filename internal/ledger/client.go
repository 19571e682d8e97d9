// Package ledger talks to the accounting ledger's HTTP API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ledgermatch/ledgermatch/internal/common"
	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Config holds the ledger connection settings.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ConfigFromViper reads the ledger.* configuration keys.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:      v.GetString("ledger.base_url"),
		TokenURL:     v.GetString("ledger.token_url"),
		ClientID:     v.GetString("ledger.client_id"),
		ClientSecret: v.GetString("ledger.client_secret"),
		Timeout:      v.GetDuration("ledger.timeout"),
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BaseURL == "" {
		return cfg, fmt.Errorf("%w: ledger.base_url", common.ErrMissingConfig)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return cfg, fmt.Errorf("%w: ledger.client_id and ledger.client_secret", common.ErrMissingConfig)
	}
	return cfg, nil
}

// Client implements service.LedgerPoster against the ledger HTTP API.
// Authentication is OAuth2 client credentials; the token source refreshes
// transparently.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Client from the configuration.
func NewClient(ctx context.Context, cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
	}
}

type postPayload struct {
	Kind         string `json:"kind"`
	Date         string `json:"date"`
	Vendor       string `json:"vendor"`
	Category     string `json:"category"`
	Jurisdiction string `json:"jurisdiction"`
	Memo         string `json:"memo,omitempty"`
	Method       string `json:"method,omitempty"`
	Amount       string `json:"amount"`
}

type postResponse struct {
	ID string `json:"id"`
}

// Post creates one posting. The ledger deduplicates on the
// Idempotency-Key header and replays return the original posting id, so
// Post is safe to retry.
func (c *Client) Post(ctx context.Context, req service.PostRequest) (string, error) {
	payload := postPayload{
		Kind:         string(req.Kind),
		Date:         req.Date.Format("2006-01-02"),
		Vendor:       req.Vendor,
		Category:     req.Category,
		Jurisdiction: req.Jurisdiction,
		Memo:         req.Memo,
		Method:       req.Method,
		Amount:       req.Amount.StringFixed(2),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode posting: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/postings", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &common.RetryableError{
			Err:       fmt.Errorf("%w: %v", common.ErrLedgerUnavailable, err),
			Retryable: true,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("%w: status %d", common.ErrLedgerAuth, resp.StatusCode),
			Retryable: false,
		}
	case resp.StatusCode >= 500:
		return "", &common.RetryableError{
			Err:       fmt.Errorf("%w: status %d", common.ErrLedgerUnavailable, resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &common.RetryableError{
			Err:       fmt.Errorf("ledger rejected posting: status %d: %s", resp.StatusCode, msg),
			Retryable: false,
		}
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode posting response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("ledger returned an empty posting id")
	}
	return parsed.ID, nil
}

type entriesResponse struct {
	Entries []struct {
		ID             string `json:"id"`
		IdempotencyKey string `json:"idempotency_key"`
	} `json:"entries"`
}

// PostedEntries lists every posting this system created, keyed by
// idempotency key. Feeds the posted-versus-marked audit.
func (c *Client) PostedEntries(ctx context.Context) ([]service.PostedEntry, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/postings", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", common.ErrLedgerUnavailable, resp.StatusCode)
	}

	var parsed entriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}

	entries := make([]service.PostedEntry, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		entries = append(entries, service.PostedEntry{
			IdempotencyKey: e.IdempotencyKey,
			PostedID:       e.ID,
		})
	}
	return entries, nil
}

var _ service.LedgerPoster = (*Client)(nil)
