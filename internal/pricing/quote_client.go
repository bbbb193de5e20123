package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errQuoteMissing = errors.New("quote missing in response")

// QuoteClient is a client for an HTTP market quote API exposing
// GET /quote?symbol=SYM with a JSON {"symbol": ..., "price": ...} body.
type QuoteClient struct {
	baseURL    string
	httpClient *http.Client
}

type quoteResponse struct {
	Symbol string      `json:"symbol"`
	Price  json.Number `json:"price"`
	Date   string      `json:"date"`
}

// NewQuoteClient creates a quote API client.
func NewQuoteClient(baseURL string, timeout time.Duration) *QuoteClient {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &QuoteClient{
		baseURL: trimmed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetLivePrice fetches the current market price for symbol.
func (c *QuoteClient) GetLivePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return decimal.Zero, &PriceUnavailableError{Symbol: symbol, Err: errors.New("symbol is required")}
	}
	if c.baseURL == "" {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: errors.New("price API base URL not configured")}
	}

	endpoint := fmt.Sprintf("%s/quote?symbol=%s", c.baseURL, url.QueryEscape(sym))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: fmt.Errorf("failed to create quote request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: fmt.Errorf("failed to request quote: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: fmt.Errorf("quote API returned status %d", resp.StatusCode)}
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	var payload quoteResponse
	if err := decoder.Decode(&payload); err != nil {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: fmt.Errorf("failed to decode quote response: %w", err)}
	}

	if payload.Price == "" {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: errQuoteMissing}
	}

	price, err := decimal.NewFromString(payload.Price.String())
	if err != nil {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: fmt.Errorf("failed to parse quote price: %w", err)}
	}
	if !price.IsPositive() {
		return decimal.Zero, &PriceUnavailableError{Symbol: sym, Err: errors.New("quote price must be positive")}
	}

	return price, nil
}
