package client

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dwdwow/morpho-go/capid"
	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// Source routes each call to the hosted API when it indexes the chain and
// falls back to the subgraph when the API fails or does not cover the chain.
type Source struct {
	api      *MorphoAPI
	subgraph *Subgraph
	log      *logger.Entry
}

// NewSource composes the two backends; either may be nil
func NewSource(api *MorphoAPI, subgraph *Subgraph, log *logger.Entry) *Source {
	return &Source{api: api, subgraph: subgraph, log: logger.OrDiscard(log, "source")}
}

func (s *Source) Name() string { return "source" }

func route[T any](ctx context.Context, s *Source, chainID int64, op string, call func(DataSource) (T, error)) (T, error) {
	var zero T
	var apiErr error

	if s.api != nil && s.api.Supports(chainID) {
		v, err := call(s.api)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		apiErr = err
	}

	if s.subgraph == nil || !s.subgraph.Supports(chainID) {
		if apiErr != nil {
			return zero, apiErr
		}
		return zero, fmt.Errorf("%s on chain %d: %w", op, chainID, ErrSourceUnavailable)
	}

	if apiErr != nil {
		s.log.WithError(apiErr).WithFields(logger.Fields{"op": op, "chain": chainID}).Warn("api failed, falling back to subgraph")
	}
	v, err := call(s.subgraph)
	if err != nil && apiErr != nil && errors.Is(err, ErrSourceUnavailable) {
		return zero, apiErr
	}
	return v, err
}

func (s *Source) Market(ctx context.Context, chainID int64, uniqueKey string) (*types.Market, error) {
	return route(ctx, s, chainID, "market", func(d DataSource) (*types.Market, error) {
		return d.Market(ctx, chainID, uniqueKey)
	})
}

func (s *Source) Markets(ctx context.Context, chainID int64) ([]types.Market, error) {
	return route(ctx, s, chainID, "markets", func(d DataSource) ([]types.Market, error) {
		return d.Markets(ctx, chainID)
	})
}

func (s *Source) MarketSupplies(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return route(ctx, s, chainID, "supplies", func(d DataSource) (types.Page[types.MarketActivityTransaction], error) {
		return d.MarketSupplies(ctx, chainID, uniqueKey, minAssets, page)
	})
}

func (s *Source) MarketBorrows(ctx context.Context, chainID int64, uniqueKey, minAssets string, page types.PageRequest) (types.Page[types.MarketActivityTransaction], error) {
	return route(ctx, s, chainID, "borrows", func(d DataSource) (types.Page[types.MarketActivityTransaction], error) {
		return d.MarketBorrows(ctx, chainID, uniqueKey, minAssets, page)
	})
}

func (s *Source) MarketLiquidations(ctx context.Context, chainID int64, uniqueKey string) ([]types.MarketLiquidationTransaction, error) {
	return route(ctx, s, chainID, "liquidations", func(d DataSource) ([]types.MarketLiquidationTransaction, error) {
		return d.MarketLiquidations(ctx, chainID, uniqueKey)
	})
}

func (s *Source) MarketSuppliers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return route(ctx, s, chainID, "suppliers", func(d DataSource) (types.Page[types.MarketPosition], error) {
		return d.MarketSuppliers(ctx, chainID, uniqueKey, minShares, page)
	})
}

func (s *Source) MarketBorrowers(ctx context.Context, chainID int64, uniqueKey, minShares string, page types.PageRequest) (types.Page[types.MarketPosition], error) {
	return route(ctx, s, chainID, "borrowers", func(d DataSource) (types.Page[types.MarketPosition], error) {
		return d.MarketBorrowers(ctx, chainID, uniqueKey, minShares, page)
	})
}

func (s *Source) MarketHistoricalData(ctx context.Context, chainID int64, uniqueKey string, tr types.TimeRange) (*types.MarketHistoricalData, error) {
	return route(ctx, s, chainID, "history", func(d DataSource) (*types.MarketHistoricalData, error) {
		return d.MarketHistoricalData(ctx, chainID, uniqueKey, tr)
	})
}

func (s *Source) VaultDetails(ctx context.Context, chainID int64, vault string) (*types.VaultDetails, error) {
	return route(ctx, s, chainID, "vault", func(d DataSource) (*types.VaultDetails, error) {
		return d.VaultDetails(ctx, chainID, vault)
	})
}

func (s *Source) VaultCaps(ctx context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error) {
	return route(ctx, s, chainID, "vault caps", func(d DataSource) ([]types.VaultV2Cap, error) {
		return d.VaultCaps(ctx, chainID, vault)
	})
}

// VaultAllocations resolves every market cap of a vault to its market and
// reports the allocated assets. Markets that cannot be found are skipped.
func VaultAllocations(ctx context.Context, ds DataSource, chainID int64, vault string) ([]types.VaultAllocation, error) {
	caps, err := ds.VaultCaps(ctx, chainID, vault)
	if err != nil {
		return nil, err
	}

	out := []types.VaultAllocation{}
	for _, c := range caps {
		parsed := capid.ParseCapIDParams(c.IDParams)
		if parsed.Kind != capid.KindMarket {
			continue
		}
		market, err := ds.Market(ctx, chainID, parsed.MarketID.Hex())
		if err != nil {
			return nil, err
		}
		if market == nil {
			continue
		}
		out = append(out, types.VaultAllocation{
			Market:          *market,
			AllocatedAssets: utils.OrDefault(c.Allocation, "0"),
			SupplyCap:       c.AbsoluteCap,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utils.BigOrZero(out[i].AllocatedAssets).Cmp(utils.BigOrZero(out[j].AllocatedAssets)) > 0
	})
	return out, nil
}

// ChainResult is the outcome of one chain of a fan-out
type ChainResult[T any] struct {
	ChainID int64
	Value   T
	Err     error
}

// FanOut runs fn for every chain concurrently and waits for all of them. A
// failing chain is logged and reported in its result; it never cancels the
// others. Results keep the order of chains.
func FanOut[T any](ctx context.Context, chains []int64, log *logger.Entry, fn func(ctx context.Context, chainID int64) (T, error)) []ChainResult[T] {
	log = logger.OrDiscard(log, "fanout")
	results := make([]ChainResult[T], len(chains))

	var g errgroup.Group
	for i, chainID := range chains {
		g.Go(func() error {
			v, err := fn(ctx, chainID)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"chain": chainID}).Warn("chain fetch failed")
			}
			results[i] = ChainResult[T]{ChainID: chainID, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
