// Package hive is the public facade over the linked-account store, the
// ingestion pipeline, and the quota refresher. Callers (the CLI, an
// embedding program) talk to Service; everything underneath stays
// internal.
package hive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudhive/hivecore/internal/ingest"
	"github.com/cloudhive/hivecore/internal/store"
)

// ErrInvalidFilter indicates a query filter combination the index cannot
// answer.
var ErrInvalidFilter = errors.New("hive: invalid query filter")

// ErrUnknownAccount indicates an operation referenced an account or
// object the index has never seen.
var ErrUnknownAccount = errors.New("hive: unknown account")

// Store is the persistence surface the facade needs; store.SQLiteStore
// implements it.
type Store interface {
	PutCredential(ctx context.Context, rec *store.CredentialRecord) error
	DeleteCredential(ctx context.Context, provider, accountID string) error
	ListAccounts(ctx context.Context) (map[string][]string, error)

	FindObjectByExternalID(ctx context.Context, externalID string) (*store.ObjectRecord, error)
	ObjectsByParent(ctx context.Context, parentID string) ([]*store.ObjectRecord, error)
	ObjectsByParents(ctx context.Context, parentIDs []string) ([]*store.ObjectRecord, error)
	StarredObjects(ctx context.Context, parentID string) ([]*store.ObjectRecord, error)
	TrashedObjects(ctx context.Context, parentID string) ([]*store.ObjectRecord, error)
	ObjectsByMimeTypes(ctx context.Context, mimeTypes []string) ([]*store.ObjectRecord, error)

	DeleteRootFolder(ctx context.Context, provider, accountID string) error
	ListRootFolderIDs(ctx context.Context) ([]string, error)

	DeleteQuota(ctx context.Context, provider, accountID string) error
	ListQuotas(ctx context.Context) (map[string]*store.QuotaSnapshot, error)
}

// Ingestor runs upload batches; ingest.Pipeline implements it.
type Ingestor interface {
	Ingest(ctx context.Context, providerName, accountID, parentID string, entries []ingest.Entry) (*ingest.Result, error)
}

// QuotaService refreshes and reads quota snapshots; quota.Refresher
// implements it.
type QuotaService interface {
	RefreshAll(ctx context.Context) error
	Cached(ctx context.Context) (map[string]*store.QuotaSnapshot, error)
}

// Filter selects index records for Query. Category is exclusive: it
// scans by MIME type across all accounts and cannot be combined with the
// other fields. Starred and Trashed are mutually exclusive. An empty
// ParentID means the virtual top level spanning every account's
// application root.
type Filter struct {
	ParentID string
	Starred  bool
	Trashed  bool
	Category store.Category
}

// Service is the aggregator facade.
type Service struct {
	store  Store
	ingest Ingestor
	quotas QuotaService
	known  map[string]bool
	logger *slog.Logger
}

// NewService wires the facade. knownProviders are the registered adapter
// names; Link rejects credentials for anything else.
func NewService(st Store, ing Ingestor, quotas QuotaService, knownProviders []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	known := make(map[string]bool, len(knownProviders))
	for _, name := range knownProviders {
		known[name] = true
	}

	return &Service{store: st, ingest: ing, quotas: quotas, known: known, logger: logger}
}

// Link imports an already-authorized credential into the store. The
// authorization-code exchange happens outside; Link only persists its
// result.
func (s *Service) Link(ctx context.Context, rec *store.CredentialRecord) error {
	if !s.known[rec.Provider] {
		return fmt.Errorf("%w: no adapter registered for provider %q", ErrUnknownAccount, rec.Provider)
	}

	if rec.AccountID == "" || rec.RefreshToken == "" || rec.TokenEndpoint == "" {
		return fmt.Errorf("hive: linking %s: account id, refresh token, and token endpoint are all required", rec.Provider)
	}

	if err := s.store.PutCredential(ctx, rec); err != nil {
		return err
	}

	s.logger.Info("account linked",
		slog.String("provider", rec.Provider),
		slog.String("account_id", rec.AccountID),
	)

	return nil
}

// ListAccounts returns all linked accounts grouped by provider.
func (s *Service) ListAccounts(ctx context.Context) (map[string][]string, error) {
	return s.store.ListAccounts(ctx)
}

// Unlink removes an account's credential together with its cached root
// folder reference and quota snapshot. Indexed object metadata is kept:
// the remote objects still exist and relinking the account picks them
// back up.
func (s *Service) Unlink(ctx context.Context, provider, accountID string) error {
	if err := s.store.DeleteCredential(ctx, provider, accountID); err != nil {
		return err
	}

	if err := s.store.DeleteRootFolder(ctx, provider, accountID); err != nil {
		return err
	}

	if err := s.store.DeleteQuota(ctx, provider, accountID); err != nil {
		return err
	}

	s.logger.Info("account unlinked",
		slog.String("provider", provider),
		slog.String("account_id", accountID),
	)

	return nil
}

// Query answers a metadata query from the local index only; no provider
// calls are made. See Filter for the combination rules.
func (s *Service) Query(ctx context.Context, f Filter) ([]*store.ObjectRecord, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	if f.Category != "" {
		mimeTypes, _ := store.MimeTypesFor(f.Category)

		return s.store.ObjectsByMimeTypes(ctx, mimeTypes)
	}

	if f.ParentID == "" {
		return s.queryTopLevel(ctx, f)
	}

	switch {
	case f.Starred:
		return s.store.StarredObjects(ctx, f.ParentID)
	case f.Trashed:
		return s.store.TrashedObjects(ctx, f.ParentID)
	default:
		return s.store.ObjectsByParent(ctx, f.ParentID)
	}
}

// queryTopLevel synthesizes the virtual top-level listing: the union of
// children of every account's application root.
func (s *Service) queryTopLevel(ctx context.Context, f Filter) ([]*store.ObjectRecord, error) {
	rootIDs, err := s.store.ListRootFolderIDs(ctx)
	if err != nil {
		return nil, err
	}

	if len(rootIDs) == 0 {
		return nil, nil
	}

	if !f.Starred && !f.Trashed {
		return s.store.ObjectsByParents(ctx, rootIDs)
	}

	var merged []*store.ObjectRecord

	for _, rootID := range rootIDs {
		var (
			records []*store.ObjectRecord
			qerr    error
		)

		if f.Starred {
			records, qerr = s.store.StarredObjects(ctx, rootID)
		} else {
			records, qerr = s.store.TrashedObjects(ctx, rootID)
		}

		if qerr != nil {
			return nil, qerr
		}

		merged = append(merged, records...)
	}

	return merged, nil
}

// validateFilter rejects combinations the index has no answer for.
func validateFilter(f Filter) error {
	if f.Category != "" {
		if _, ok := store.MimeTypesFor(f.Category); !ok {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, f.Category)
		}

		if f.ParentID != "" || f.Starred || f.Trashed {
			return fmt.Errorf("%w: category cannot be combined with parent, starred, or trashed", ErrInvalidFilter)
		}
	}

	if f.Starred && f.Trashed {
		return fmt.Errorf("%w: starred and trashed are mutually exclusive", ErrInvalidFilter)
	}

	return nil
}

// IngestRequest describes one upload batch. When ParentID is set and
// Provider/AccountID are empty, the owning account is resolved from the
// index. When ParentID is empty the batch lands under the account's
// application root.
type IngestRequest struct {
	Provider  string
	AccountID string
	ParentID  string
	Entries   []ingest.Entry
}

// Ingest uploads a batch of entries, resolving the owning account from
// the target parent when the caller only knows the folder id.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*ingest.Result, error) {
	providerName, accountID := req.Provider, req.AccountID

	if providerName == "" || accountID == "" {
		if req.ParentID == "" {
			return nil, fmt.Errorf("%w: no target account and no parent folder to resolve one from", ErrUnknownAccount)
		}

		parent, err := s.store.FindObjectByExternalID(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}

		if parent == nil {
			return nil, fmt.Errorf("%w: parent folder %s is not in the index", ErrUnknownAccount, req.ParentID)
		}

		providerName, accountID = parent.Provider, parent.AccountID
	}

	return s.ingest.Ingest(ctx, providerName, accountID, req.ParentID, req.Entries)
}

// RefreshAllQuotas refreshes quota snapshots for every linked account.
func (s *Service) RefreshAllQuotas(ctx context.Context) error {
	return s.quotas.RefreshAll(ctx)
}

// CachedQuotas returns stored quota snapshots without remote calls,
// keyed by "provider_accountID".
func (s *Service) CachedQuotas(ctx context.Context) (map[string]*store.QuotaSnapshot, error) {
	return s.quotas.Cached(ctx)
}
