package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// PriceFetcher polls the third-party price feed.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, feedIDs []string) (*domain.PriceSnapshot, error)
}

// PriceService keeps the latest price snapshot in Redis, shared by the API and the scheduler.
type PriceService struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	fetcher PriceFetcher
	metrics *metrics.Metrics
}

// NewPriceService creates a cache-backed price service. fetcher may be nil for read-only users.
func NewPriceService(client redis.UniversalClient, prefix string, ttl time.Duration, fetcher PriceFetcher) *PriceService {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "heritage"
	}
	return &PriceService{
		client:  client,
		key:     trimmedPrefix + ":prices:latest",
		ttl:     ttl,
		fetcher: fetcher,
	}
}

func (p *PriceService) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// Current returns the cached snapshot, fetching a fresh one on a cache miss when a fetcher is set.
func (p *PriceService) Current(ctx context.Context) (*domain.PriceSnapshot, error) {
	if p == nil {
		return nil, ErrPriceUnavailable
	}

	raw, err := p.client.Get(ctx, p.key).Bytes()
	switch {
	case err == nil:
		var snapshot domain.PriceSnapshot
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			log.Printf("level=warn component=prices outcome=decode_failed key=%s err=%v", p.key, err)
			break
		}
		return &snapshot, nil
	case errors.Is(err, redis.Nil):
	default:
		log.Printf("level=warn component=prices outcome=cache_read_failed key=%s err=%v", p.key, err)
	}

	if p.fetcher == nil {
		return nil, ErrPriceUnavailable
	}
	snapshot, err := p.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	return snapshot, nil
}

// Refresh polls the feed for every supported coin and stores the snapshot with the cache TTL.
func (p *PriceService) Refresh(ctx context.Context) (*domain.PriceSnapshot, error) {
	if p.fetcher == nil {
		return nil, errors.New("price fetcher is not configured")
	}

	snapshot, err := p.fetcher.FetchPrices(ctx, domain.CoinFeedIDs())
	if err != nil {
		p.metrics.ObservePriceRefresh("fetch_error")
		return nil, err
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal price snapshot: %w", err)
	}
	if err := p.client.Set(ctx, p.key, raw, p.ttl).Err(); err != nil {
		p.metrics.ObservePriceRefresh("cache_error")
		return nil, fmt.Errorf("failed to cache price snapshot: %w", err)
	}

	p.metrics.ObservePriceRefresh("ok")
	return snapshot, nil
}

// Quote returns the cached USD price of symbol.
func (p *PriceService) Quote(ctx context.Context, symbol string) (domain.CoinPrice, error) {
	snapshot, err := p.Current(ctx)
	if err != nil {
		return domain.CoinPrice{}, err
	}
	price, ok := snapshot.PriceForSymbol(symbol)
	if !ok {
		return domain.CoinPrice{}, ErrPriceUnavailable
	}
	return price, nil
}
