// Package ratesource fetches raw exchange rates from public HTTP APIs.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrBadResponse = errors.New("rate source: bad response")

const (
	SourceFiat   = "open.er-api"
	SourceTonAPI = "tonapi"
)

// FiatClient reads the daily USD table from open.er-api.com.
type FiatClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewFiatClient(baseURL string, log *zap.Logger) *FiatClient {
	return &FiatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

type fiatResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// FetchUSDRates returns 1 USD = rate[code] for every listed currency.
func (c *FiatClient) FetchUSDRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v6/latest/USD", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fiat rates unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, string(body))
	}

	var out fiatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if out.Result != "success" || len(out.Rates) == 0 {
		return nil, fmt.Errorf("%w: result=%q", ErrBadResponse, out.Result)
	}

	rates := make(map[string]decimal.Decimal, len(out.Rates))
	for code, r := range out.Rates {
		if !r.IsPositive() {
			continue
		}
		rates[strings.ToUpper(code)] = r
	}
	c.log.Debug("fiat rates fetched", zap.Int("count", len(rates)))
	return rates, nil
}
