package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TonAPIClient reads USD prices of volatile assets from tonapi.io.
// Calls are spaced by at least minInterval (public API rate limit).
type TonAPIClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	log         *zap.Logger
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

func NewTonAPIClient(baseURL, apiKey string, log *zap.Logger) *TonAPIClient {
	return &TonAPIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log,
		minInterval: time.Second,
	}
}

type tonapiRatesResponse struct {
	Rates map[string]struct {
		Prices map[string]decimal.Decimal `json:"prices"`
	} `json:"rates"`
}

func (c *TonAPIClient) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minInterval - time.Since(c.lastCall); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastCall = time.Now()
	return nil
}

// FetchUSDPrices returns 1 SYMBOL = price USD for the requested symbols.
// Symbols missing in the answer are absent from the map.
func (c *TonAPIClient) FetchUSDPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("tokens", strings.ToLower(strings.Join(symbols, ",")))
	q.Set("currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/rates?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tonapi unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, string(body))
	}

	var out tonapiRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	prices := make(map[string]decimal.Decimal, len(out.Rates))
	for token, r := range out.Rates {
		for cur, p := range r.Prices {
			if strings.EqualFold(cur, "USD") && p.IsPositive() {
				prices[strings.ToUpper(token)] = p
			}
		}
	}
	c.log.Debug("tonapi prices fetched", zap.Int("requested", len(symbols)), zap.Int("received", len(prices)))
	return prices, nil
}
