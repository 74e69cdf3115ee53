// Package refresh keeps a vault's cap snapshot current while chain activity
// arrives, discarding results of fetches that a newer one superseded.
package refresh

import (
	"context"
	"sync"

	"github.com/dwdwow/morpho-go/logger"
	"github.com/dwdwow/morpho-go/types"
	"github.com/dwdwow/morpho-go/utils"
)

// CapSource is the slice of client.DataSource the refresher needs
type CapSource interface {
	VaultCaps(ctx context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error)
}

// Reader yields chain events. ws.Client satisfies it.
type Reader[T any] interface {
	Read() (T, error)
	Close() error
}

// CapRefresher holds the latest caps of one vault
type CapRefresher struct {
	source  CapSource
	chainID int64
	vault   string
	log     *logger.Entry

	gen utils.Generation

	mu       sync.RWMutex
	caps     []types.VaultV2Cap
	onUpdate func([]types.VaultV2Cap)
}

func NewCapRefresher(source CapSource, chainID int64, vault string, log *logger.Entry) *CapRefresher {
	log = logger.OrDiscard(log, "refresh").WithFields(logger.Fields{"chain": chainID, "vault": vault})
	return &CapRefresher{
		source:  source,
		chainID: chainID,
		vault:   vault,
		log:     log,
	}
}

// OnUpdate registers fn to receive every accepted snapshot. Not safe to call
// concurrently with Refresh or Run.
func (r *CapRefresher) OnUpdate(fn func([]types.VaultV2Cap)) {
	r.onUpdate = fn
}

// Caps returns a copy of the latest accepted snapshot
func (r *CapRefresher) Caps() []types.VaultV2Cap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.VaultV2Cap, len(r.caps))
	copy(out, r.caps)
	return out
}

// Invalidate drops the results of every fetch in flight
func (r *CapRefresher) Invalidate() {
	r.gen.Invalidate()
}

// Refresh fetches the caps and stores them unless another Refresh or an
// Invalidate started in the meantime. accepted reports whether the result
// was stored.
func (r *CapRefresher) Refresh(ctx context.Context) (caps []types.VaultV2Cap, accepted bool, err error) {
	ticket := r.gen.Next()

	caps, err = r.source.VaultCaps(ctx, r.chainID, r.vault)
	if err != nil {
		return nil, false, err
	}
	if !r.gen.IsCurrent(ticket) {
		r.log.WithField("ticket", ticket).Debug("discarding superseded caps")
		return nil, false, nil
	}

	r.mu.Lock()
	r.caps = caps
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(caps)
	}
	return caps, true, nil
}

// Run refreshes once, then again whenever triggers fires, until ctx ends or
// triggers closes. Each trigger starts its own fetch so a slow response
// never delays a newer one. Fetch errors are logged.
func (r *CapRefresher) Run(ctx context.Context, triggers <-chan struct{}) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	refresh := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Warn("cap refresh failed")
			}
		}()
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			r.Invalidate()
			return ctx.Err()
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
			refresh()
		}
	}
}

// Pump reads events from reader and turns them into refresh triggers.
// Bursts coalesce into a single pending trigger. The returned channel closes
// when reader fails or ctx ends; reader is closed on return.
func Pump[T any](ctx context.Context, reader Reader[T], log *logger.Entry) <-chan struct{} {
	log = logger.OrDiscard(log, "refresh")
	triggers := make(chan struct{}, 1)

	stop := context.AfterFunc(ctx, func() { reader.Close() })
	go func() {
		defer close(triggers)
		defer stop()
		defer reader.Close()

		for {
			if _, err := reader.Read(); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("event stream closed")
				}
				return
			}
			select {
			case triggers <- struct{}{}:
			default:
			}
		}
	}()
	return triggers
}
