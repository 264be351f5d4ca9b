// Package exchange resolves spot conversion rates between currency codes.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cuteanbogdan/finance-tracker-backend/internal/config"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the rate provider cannot be reached or
// does not know the requested currency pair.
var ErrUnavailable = errors.New("exchange rate unavailable")

// Provider resolves the spot rate from one currency to another.
type Provider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Client talks to the exchangerate-api.com "latest" endpoint:
// GET {base_url}/{from} returns {"base":"USD","rates":{"EUR":0.92,...}}.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.ExchangeConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

type latestResp struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate fetches the rate for one (from, to) pair. No retry: a provider
// failure must fail the whole operation fast.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, strings.ToUpper(from))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
	}

	var body latestResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	rate, ok := body.Rates[strings.ToUpper(to)]
	if !ok || rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s -> %s", ErrUnavailable, from, to)
	}
	return rate, nil
}
