package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dwdwow/morpho-go/cache"
	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/metrics"
	"github.com/dwdwow/morpho-go/tokens"
)

var pegPriceIDs = map[tokens.Peg]string{
	tokens.PegETH: "ethereum",
	tokens.PegBTC: "bitcoin",
	tokens.PegUSD: "usd-coin",
}

// PriceOracle serves USD prices of the major assets tokens can be pegged to.
// Prices are cached for the TTL; any failure yields 0.
type PriceOracle struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.TTL[map[string]float64]
	log        *logger.Entry
}

// NewPriceOracle creates an oracle. Empty baseURL and zero ttl use defaults.
func NewPriceOracle(baseURL string, timeout, ttl time.Duration, now cache.Clock, log *logger.Entry, m *metrics.Collectors) *PriceOracle {
	if baseURL == "" {
		baseURL = constants.PriceAPIURL
	}
	if timeout == 0 {
		timeout = constants.DefaultTimeout * time.Second
	}
	if ttl <= 0 {
		ttl = constants.PriceCacheTTL
	}
	return &PriceOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.NewTTL("prices", cache.NewMemory[map[string]float64](now), ttl, m),
		log:        logger.OrDiscard(log, "prices"),
	}
}

// PegPrice returns the USD price of the peg's reference asset, or 0
func (p *PriceOracle) PegPrice(ctx context.Context, peg tokens.Peg) float64 {
	id, ok := pegPriceIDs[peg]
	if !ok {
		return 0
	}
	prices, err := p.cache.GetOrLoad(ctx, "majors", p.load)
	if err != nil {
		p.log.WithError(err).Warn("failed to fetch major asset prices")
		return 0
	}
	return prices[id]
}

func (p *PriceOracle) load(ctx context.Context) (map[string]float64, error) {
	q := url.Values{"ids": {"ethereum,bitcoin,usd-coin"}, "vs_currencies": {"usd"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var raw map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for id, v := range raw {
		prices[id] = v.USD
	}
	return prices, nil
}
