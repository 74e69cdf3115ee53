package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwdwow/morpho-go/constants"
	"github.com/dwdwow/morpho-go/logger"
)

// ErrSourceUnavailable is returned when a source has no endpoint for a chain
var ErrSourceUnavailable = errors.New("data source unavailable for chain")

// RetryPolicy bounds the NOT_FOUND retry loop of the API fetcher
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy is 3 attempts with 500ms x attempt between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: constants.DefaultMaxRetries, Backoff: constants.DefaultRetryBackoff}
}

// sleepFunc waits for d or until ctx is done
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryingFetcher posts to the hosted API. The backend emits spurious
// NOT_FOUND errors under load, which are handled here and nowhere else:
// NOT_FOUND alongside data is a success, NOT_FOUND without data is retried
// and finally reported as absence (found == false, err == nil).
type retryingFetcher struct {
	api    *API
	policy RetryPolicy
	sleep  sleepFunc
}

func (f *retryingFetcher) fetch(ctx context.Context, query string, vars map[string]any, out any) (bool, error) {
	attempts := max(f.policy.MaxRetries, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := f.api.Post(ctx, query, vars)
		if err != nil {
			return false, err
		}

		if len(resp.Errors) == 0 {
			if !resp.HasData() {
				return false, nil
			}
			return true, resp.Decode(out)
		}

		gqlErr := &resp.Errors[0]
		if !allNotFound(resp.Errors) {
			return false, gqlErr
		}

		if resp.HasData() {
			f.api.log.WithFields(logger.Fields{"error": gqlErr.Message}).Warn("NOT_FOUND returned with data, using data")
			return true, resp.Decode(out)
		}

		if attempt == attempts {
			break
		}
		f.api.metrics.IncRetry(f.api.source)
		f.api.log.WithFields(logger.Fields{"attempt": attempt, "max": attempts}).Debug("NOT_FOUND without data, retrying")
		if err := f.sleep(ctx, f.policy.Backoff*time.Duration(attempt)); err != nil {
			return false, err
		}
	}

	f.api.log.WithFields(logger.Fields{"attempts": attempts}).Info("NOT_FOUND after retries, treating as absent")
	return false, nil
}

func allNotFound(errs []GraphQLError) bool {
	for i := range errs {
		if !errs[i].IsNotFound() {
			return false
		}
	}
	return len(errs) > 0
}

// plainFetcher posts to a subgraph: no retry, first error surfaces
type plainFetcher struct {
	api *API
}

func (f *plainFetcher) fetch(ctx context.Context, query string, vars map[string]any, out any) error {
	resp, err := f.api.Post(ctx, query, vars)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("subgraph query failed: %w", &resp.Errors[0])
	}
	return resp.Decode(out)
}
