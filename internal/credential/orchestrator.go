// Package credential manages the lifecycle of per-account OAuth
// credentials: staleness checks, single-flight refresh against the
// provider, and persistence of the merged result.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/store"
)

// StalenessMargin is the safety window before expiry within which a
// credential is already considered stale, so tokens never expire mid-call.
const StalenessMargin = 60 * time.Second

// ErrNotFound indicates no credential record exists for the requested
// (provider, account) key; the user must authorize the account first.
var ErrNotFound = errors.New("credential: no linked account")

// RefreshError wraps a failed refresh with its provider detail. The
// stored record is retained: it may still be briefly usable, and deleting
// it would force a full re-authorization.
type RefreshError struct {
	Provider  string
	AccountID string
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential: refresh failed for %s/%s: %v", e.Provider, e.AccountID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Store is the narrow persistence surface the orchestrator needs.
// store.SQLiteStore implements it; tests substitute fakes.
type Store interface {
	GetCredential(ctx context.Context, provider, accountID string) (*store.CredentialRecord, error)
	PutCredential(ctx context.Context, rec *store.CredentialRecord) error
}

// Orchestrator decides when a credential is stale and serializes refresh
// operations so at most one refresh per (provider, account) is ever in
// flight. Concurrent callers for the same key join the in-flight refresh
// and share its result; callers for different keys proceed independently.
type Orchestrator struct {
	store    Store
	registry *provider.Registry
	logger   *slog.Logger
	group    singleflight.Group

	// now is a test hook; defaults to time.Now.
	now func() time.Time
}

// NewOrchestrator wires the orchestrator to its store and the provider
// registry.
func NewOrchestrator(st Store, registry *provider.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:    st,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Acquire returns a usable access token and the backing record for the
// given account, refreshing first when the stored credential is stale.
// Fresh credentials are returned without any remote call.
func (o *Orchestrator) Acquire(ctx context.Context, providerName, accountID string) (string, *store.CredentialRecord, error) {
	rec, err := o.store.GetCredential(ctx, providerName, accountID)
	if err != nil {
		return "", nil, err
	}

	if rec == nil {
		return "", nil, fmt.Errorf("%w: %s/%s", ErrNotFound, providerName, accountID)
	}

	if !o.isStale(rec) {
		o.logger.Debug("credential still fresh",
			slog.String("provider", providerName),
			slog.String("account_id", accountID),
			slog.Time("expiry", rec.Expiry),
		)

		return rec.AccessToken, rec, nil
	}

	// Single-flight per key: the first caller performs the refresh, the
	// rest block and share its result. The winning caller's context
	// governs the remote call.
	key := providerName + "/" + accountID

	v, err, shared := o.group.Do(key, func() (any, error) {
		return o.refresh(ctx, providerName, accountID)
	})
	if err != nil {
		return "", nil, err
	}

	if shared {
		o.logger.Debug("joined in-flight refresh", slog.String("key", key))
	}

	refreshed, ok := v.(*store.CredentialRecord)
	if !ok {
		return "", nil, fmt.Errorf("credential: unexpected refresh result type %T", v)
	}

	return refreshed.AccessToken, refreshed, nil
}

// isStale reports whether the record's access token needs a refresh.
// A missing expiry means the token lifetime is unknown, treat as stale.
func (o *Orchestrator) isStale(rec *store.CredentialRecord) bool {
	if rec.Expiry.IsZero() {
		return true
	}

	return !o.now().Add(StalenessMargin).Before(rec.Expiry)
}

// refresh performs one refresh inside the single-flight group: reload the
// record (a refresh that completed while we waited may have already
// renewed it), call the provider, merge, persist.
func (o *Orchestrator) refresh(ctx context.Context, providerName, accountID string) (*store.CredentialRecord, error) {
	rec, err := o.store.GetCredential(ctx, providerName, accountID)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, providerName, accountID)
	}

	if !o.isStale(rec) {
		return rec, nil
	}

	adapter, err := o.registry.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	o.logger.Info("refreshing stale credential",
		slog.String("provider", providerName),
		slog.String("account_id", accountID),
		slog.Time("expiry", rec.Expiry),
	)

	result, err := adapter.Refresh(ctx, rec.RefreshToken, rec.TokenEndpoint, rec.Scopes)
	if err != nil {
		o.logger.Warn("credential refresh failed",
			slog.String("provider", providerName),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)

		return nil, &RefreshError{Provider: providerName, AccountID: accountID, Err: err}
	}

	rec.AccessToken = result.AccessToken
	rec.Expiry = result.Expiry

	// Providers may omit the refresh token on renewal; the prior value
	// must be retained, never overwritten with empty.
	if result.RefreshToken != "" {
		rec.RefreshToken = result.RefreshToken
	}

	if err := o.store.PutCredential(ctx, rec); err != nil {
		return nil, fmt.Errorf("credential: persisting refreshed record: %w", err)
	}

	o.logger.Info("credential refreshed",
		slog.String("provider", providerName),
		slog.String("account_id", accountID),
		slog.Time("new_expiry", rec.Expiry),
	)

	return rec, nil
}
