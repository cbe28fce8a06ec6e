// Package quota maintains storage quota snapshots for every linked
// account. Reads always come from the local snapshot table; refreshes
// fan out to the providers concurrently.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/store"
)

// maxConcurrentRefreshes bounds provider fan-out during a full refresh.
const maxConcurrentRefreshes = 4

// Store is the persistence surface the refresher needs.
type Store interface {
	ListAccounts(ctx context.Context) (map[string][]string, error)
	PutQuota(ctx context.Context, snap *store.QuotaSnapshot) error
	ListQuotas(ctx context.Context) (map[string]*store.QuotaSnapshot, error)
}

// TokenSource yields usable access tokens; the credential orchestrator
// implements it.
type TokenSource interface {
	Acquire(ctx context.Context, provider, accountID string) (string, *store.CredentialRecord, error)
}

// Refresher pulls live quota figures from providers and persists them as
// timestamped snapshots.
type Refresher struct {
	store    Store
	tokens   TokenSource
	registry *provider.Registry
	logger   *slog.Logger

	// now is a test hook; defaults to time.Now.
	now func() time.Time
}

// NewRefresher wires the refresher to its store, token source, and
// registry.
func NewRefresher(st Store, tokens TokenSource, registry *provider.Registry, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		store:    st,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// RefreshAccount fetches and persists a fresh quota snapshot for one
// account.
func (r *Refresher) RefreshAccount(ctx context.Context, providerName, accountID string) error {
	adapter, err := r.registry.Lookup(providerName)
	if err != nil {
		return err
	}

	accessToken, _, err := r.tokens.Acquire(ctx, providerName, accountID)
	if err != nil {
		return err
	}

	snap, err := adapter.GetQuota(ctx, accessToken, accountID)
	if err != nil {
		return fmt.Errorf("quota: fetching quota for %s/%s: %w", providerName, accountID, err)
	}

	snap.RefreshedAt = r.now().UTC()

	if err := r.store.PutQuota(ctx, snap); err != nil {
		return fmt.Errorf("quota: persisting snapshot for %s/%s: %w", providerName, accountID, err)
	}

	r.logger.Debug("quota snapshot refreshed",
		slog.String("provider", providerName),
		slog.String("account_id", accountID),
		slog.Int64("usage", snap.Usage),
		slog.Int64("limit", snap.Limit),
	)

	return nil
}

// RefreshAll refreshes every linked account concurrently. One account's
// failure does not stop the others; the first error is returned after all
// refreshes have finished.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRefreshes)

	var (
		mu       sync.Mutex
		firstErr error
	)

	for providerName, accountIDs := range accounts {
		for _, accountID := range accountIDs {
			providerName, accountID := providerName, accountID

			g.Go(func() error {
				if err := r.RefreshAccount(gctx, providerName, accountID); err != nil {
					r.logger.Warn("quota refresh failed",
						slog.String("provider", providerName),
						slog.String("account_id", accountID),
						slog.String("error", err.Error()),
					)

					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}

				// Errors are collected, not returned, so sibling
				// refreshes keep running.
				return nil
			})
		}
	}

	_ = g.Wait()

	return firstErr
}

// Cached returns the stored snapshots without any remote calls, keyed by
// QuotaSnapshot.Key().
func (r *Refresher) Cached(ctx context.Context) (map[string]*store.QuotaSnapshot, error) {
	return r.store.ListQuotas(ctx)
}

// Run refreshes all quotas on the given interval until the context is
// cancelled. The first refresh happens immediately.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if err := r.RefreshAll(ctx); err != nil {
		r.logger.Warn("periodic quota refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshAll(ctx); err != nil {
				r.logger.Warn("periodic quota refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
