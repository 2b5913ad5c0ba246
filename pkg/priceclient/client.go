/**
 * @description
 * Client for the third-party crypto price feed (CoinGecko simple/price API).
 * Concurrent callers asking for the same ids share one upstream request.
 */
package priceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Client fetches USD quotes from the price feed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time
}

// NewClient creates a new price feed client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// FetchPrices returns the USD price and 24h change for the given feed ids.
func (c *Client) FetchPrices(ctx context.Context, feedIDs []string) (*domain.PriceSnapshot, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("price feed base URL is not configured")
	}
	if len(feedIDs) == 0 {
		return nil, fmt.Errorf("no feed ids requested")
	}

	ids := strings.Join(feedIDs, ",")
	result, err, _ := c.group.Do(ids, func() (interface{}, error) {
		return c.fetch(ctx, ids)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.PriceSnapshot), nil
}

func (c *Client) fetch(ctx context.Context, ids string) (*domain.PriceSnapshot, error) {
	query := url.Values{}
	query.Set("ids", ids)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to price feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("price feed returned error status %d", resp.StatusCode)
	}

	var prices map[string]domain.CoinPrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("failed to decode price feed response: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("price feed returned no quotes")
	}

	return &domain.PriceSnapshot{Prices: prices, FetchedAt: c.now().UTC()}, nil
}
