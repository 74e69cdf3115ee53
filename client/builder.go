package client

import (
	"context"
	"fmt"

	"github.com/dwdwow/morpho-go/cache"
	"github.com/dwdwow/morpho-go/config"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/metrics"
	"github.com/dwdwow/morpho-go/types"
)

// NewFromConfig wires both backends from cfg. When cfg.Cache.Redis.Addr is
// set the position snapshots are kept in Redis, otherwise in process.
func NewFromConfig(ctx context.Context, cfg *config.Config, registry Registry, log *logger.Log, m *metrics.Collectors) (*Source, error) {
	if log == nil {
		log = logger.Discard()
	}
	opts := func(source string) []Option {
		return []Option{
			WithSource(source),
			WithLogger(log.WithComponent("client")),
			WithMetrics(m),
			WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateBurst),
		}
	}
	policy := RetryPolicy{MaxRetries: cfg.Retry.MaxRetries, Backoff: cfg.Retry.Backoff}

	var (
		apiURL    string
		apiChains []int64
		endpoints = make(map[int64]*API)
	)
	for _, ch := range cfg.Chains {
		if ch.APIURL != "" {
			if apiURL == "" {
				apiURL = ch.APIURL
			}
			apiChains = append(apiChains, ch.ID)
		}
		if ch.SubgraphURL != "" {
			endpoints[ch.ID] = NewAPI(ch.SubgraphURL, cfg.HTTP.Timeout, opts("subgraph")...)
		}
	}

	var api *MorphoAPI
	if len(apiChains) > 0 {
		api = NewMorphoAPI(NewAPI(apiURL, cfg.HTTP.Timeout, opts("api")...), policy, registry, apiChains)
	}

	var store cache.Store[[]types.MarketPosition]
	if cfg.Cache.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create position cache: %w", err)
		}
		store = cache.NewRedis[[]types.MarketPosition](rdb, cfg.Cache.Redis.Prefix)
	}
	pager := NewPositionPager(store, cfg.Cache.PositionsTTL, m)

	prices := NewPriceOracle(cfg.Cache.PriceURL, cfg.HTTP.Timeout, cfg.Cache.PriceTTL, nil, log.WithComponent("prices"), m)

	sg := NewSubgraph(endpoints, registry, prices, pager, log.WithComponent("subgraph"))
	return NewSource(api, sg, log.WithComponent("source")), nil
}
