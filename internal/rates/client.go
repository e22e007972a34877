package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tellquote/tellquote/internal/currency"
)

// DefaultURL is the public USD-based rate endpoint.
const DefaultURL = "https://api.exchangerate-api.com/v4/latest/USD"

// ErrEmptyRates reports a response without any usable rate.
var ErrEmptyRates = errors.New("rates: response carried no rates")

const maxResponseBytes = 1 << 20

// Client wraps the upstream exchange-rate API.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient constructs a client for url with a request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type latestResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Latest fetches the current USD-based table as published upstream.
func (c *Client) Latest(ctx context.Context) (currency.Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("rates: upstream returned status %d", resp.StatusCode)
	}
	var payload latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("rates: decode response: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, ErrEmptyRates
	}
	return currency.Rates(payload.Rates), nil
}
