package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dwdwow/morpho-go/cache"
	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/metrics"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// PositionSide selects supplier or borrower positions
type PositionSide string

const (
	SideSupplier PositionSide = "supplier"
	SideBorrower PositionSide = "borrower"
)

// PositionKey identifies one cached position snapshot
type PositionKey struct {
	Network   int64
	MarketID  string
	MinShares string
	Side      PositionSide
}

func (k PositionKey) String() string {
	return fmt.Sprintf("positions:%d:%s:%s:%s",
		k.Network, strings.ToLower(k.MarketID), utils.BigOrZero(k.MinShares), k.Side)
}

// PositionLoader fetches at most limit positions
type PositionLoader func(ctx context.Context, limit int) ([]types.MarketPosition, error)

// PositionPager emulates pagination for a backend that can only return one
// bounded result set. The set is fetched once per key and TTL, and every page
// is sliced from it. TotalCount is the size of the cached set, so it is only
// a lower bound when the set reached the ceiling; IsExact tells which.
type PositionPager struct {
	cache   *cache.TTL[[]types.MarketPosition]
	ceiling int
}

// NewPositionPager builds a pager over store. ttl <= 0 uses 120s.
func NewPositionPager(store cache.Store[[]types.MarketPosition], ttl time.Duration, m *metrics.Collectors) *PositionPager {
	if ttl <= 0 {
		ttl = constants.PositionsCacheTTL
	}
	if store == nil {
		store = cache.NewMemory[[]types.MarketPosition](nil)
	}
	return &PositionPager{
		cache:   cache.NewTTL("positions", store, ttl, m),
		ceiling: constants.SubgraphFetchCeiling,
	}
}

// Page returns the requested window of the snapshot for key, loading the
// snapshot on a miss
func (p *PositionPager) Page(ctx context.Context, key PositionKey, req types.PageRequest, load PositionLoader) (types.Page[types.MarketPosition], error) {
	items, err := p.cache.GetOrLoad(ctx, key.String(), func(ctx context.Context) ([]types.MarketPosition, error) {
		items, err := load(ctx, p.ceiling)
		if err != nil {
			return nil, err
		}
		if len(items) > p.ceiling {
			items = items[:p.ceiling]
		}
		return items, nil
	})
	if err != nil {
		return types.Page[types.MarketPosition]{}, err
	}
	return types.SlicePage(items, req, len(items) < p.ceiling), nil
}
