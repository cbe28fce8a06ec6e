// Package rootfolder resolves the application root folder on each linked
// account: the designated remote folder all managed objects live under.
// Resolution is lazy-validate-then-recreate: the cached id is trusted
// after one lightweight existence check, and recreated when the remote
// folder disappeared out-of-band.
package rootfolder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/store"
)

// RootFolderName is the reserved application folder name created directly
// under each provider's native root.
const RootFolderName = "CloudHive"

// Store is the narrow persistence surface the resolver needs.
type Store interface {
	GetRootFolder(ctx context.Context, provider, accountID string) (string, error)
	SetRootFolder(ctx context.Context, provider, accountID, folderID string) error
}

// TokenSource yields usable access tokens; the credential orchestrator
// implements it.
type TokenSource interface {
	Acquire(ctx context.Context, provider, accountID string) (string, *store.CredentialRecord, error)
}

// Resolver resolves application root folders for all linked accounts.
type Resolver struct {
	store    Store
	tokens   TokenSource
	registry *provider.Registry
	logger   *slog.Logger
}

// NewResolver wires the resolver to its store, token source, and registry.
func NewResolver(st Store, tokens TokenSource, registry *provider.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{store: st, tokens: tokens, registry: registry, logger: logger}
}

// EnsureRoot returns the application root folder id for the account,
// creating or re-adopting the remote folder as needed. The returned id is
// persisted, overwriting any stale prior value; a stale id is never
// returned again.
func (r *Resolver) EnsureRoot(ctx context.Context, providerName, accountID string) (string, error) {
	adapter, err := r.registry.Lookup(providerName)
	if err != nil {
		return "", err
	}

	accessToken, _, err := r.tokens.Acquire(ctx, providerName, accountID)
	if err != nil {
		return "", err
	}

	cached, err := r.store.GetRootFolder(ctx, providerName, accountID)
	if err != nil {
		return "", err
	}

	if cached != "" {
		exists, existsErr := adapter.ObjectExists(ctx, accessToken, cached)
		if existsErr != nil {
			return "", fmt.Errorf("rootfolder: validating cached root: %w", existsErr)
		}

		if exists {
			return cached, nil
		}

		// Expected, recoverable drift: the folder was deleted out-of-band.
		r.logger.Warn("cached root folder no longer exists remotely, recreating",
			slog.String("provider", providerName),
			slog.String("account_id", accountID),
			slog.String("stale_id", cached),
		)
	}

	folderID, err := r.findOrCreate(ctx, adapter, accessToken, accountID)
	if err != nil {
		return "", err
	}

	if err := r.store.SetRootFolder(ctx, providerName, accountID, folderID); err != nil {
		return "", err
	}

	return folderID, nil
}

// findOrCreate adopts an existing application folder under the provider's
// native root, or creates one and opens its links for public reading.
func (r *Resolver) findOrCreate(
	ctx context.Context, adapter provider.Adapter, accessToken, accountID string,
) (string, error) {
	existing, err := adapter.FindFolder(ctx, accessToken, accountID, RootFolderName, provider.NativeRootID)
	if err != nil {
		return "", fmt.Errorf("rootfolder: searching for application folder: %w", err)
	}

	if existing != nil {
		r.logger.Info("adopted existing application root folder",
			slog.String("account_id", accountID),
			slog.String("folder_id", existing.ExternalID),
		)

		return existing.ExternalID, nil
	}

	created, err := adapter.CreateFolder(ctx, accessToken, accountID, RootFolderName, provider.NativeRootID)
	if err != nil {
		return "", fmt.Errorf("rootfolder: creating application folder: %w", err)
	}

	// Public reader access is required so generated preview/content links
	// are viewable outside the owning account.
	if err := adapter.SetPublicReader(ctx, accessToken, created.ExternalID); err != nil {
		return "", fmt.Errorf("rootfolder: sharing application folder: %w", err)
	}

	r.logger.Info("created application root folder",
		slog.String("account_id", accountID),
		slog.String("folder_id", created.ExternalID),
	)

	return created.ExternalID, nil
}
