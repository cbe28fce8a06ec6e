package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cloudhive/hivecore/internal/store"
)

// NativeRootID is the pseudo-id every adapter accepts for the provider's
// native top-level folder.
const NativeRootID = "root"

// RefreshResult is the outcome of a refresh-token grant. RefreshToken is
// empty when the provider did not rotate it; the caller must then retain
// the previous value.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Adapter is the capability set every external storage provider variant
// implements. Each call is credential-scoped and stateless from the
// adapter's perspective: the orchestrator supplies a valid access token
// per call, and adapters share no state between calls.
//
// Returned records are already normalized (names NFC-normalized, provider
// and account fields stamped) and remote failures are classified into the
// sentinel taxonomy of this package before they cross this boundary.
type Adapter interface {
	// Name returns the registry key, e.g. "google".
	Name() string

	// ListObjects returns metadata for all non-trashed children of folderID.
	ListObjects(ctx context.Context, accessToken, accountID, folderID string) ([]*store.ObjectRecord, error)

	// FindFolder searches for a non-trashed folder with the given name
	// directly under parentID. Returns (nil, nil) when no such folder
	// exists; absence is an answer, not an error.
	FindFolder(ctx context.Context, accessToken, accountID, name, parentID string) (*store.ObjectRecord, error)

	// CreateFolder creates a folder under parentID and returns its record.
	CreateFolder(ctx context.Context, accessToken, accountID, name, parentID string) (*store.ObjectRecord, error)

	// UploadObject uploads file bytes under parentID and returns the
	// resulting record.
	UploadObject(ctx context.Context, accessToken, accountID, name, mimeType, parentID string, data []byte) (*store.ObjectRecord, error)

	// ObjectExists performs one lightweight existence check for an id.
	// A trashed object counts as gone.
	ObjectExists(ctx context.Context, accessToken, objectID string) (bool, error)

	// SetPublicReader grants public read access on an object so generated
	// preview/content links are externally viewable.
	SetPublicReader(ctx context.Context, accessToken, objectID string) error

	// GetQuota fetches the account's current storage quota.
	GetQuota(ctx context.Context, accessToken, accountID string) (*store.QuotaSnapshot, error)

	// Refresh exchanges a refresh token for a new access token at the
	// given token endpoint.
	Refresh(ctx context.Context, refreshToken, tokenEndpoint string, scopes []string) (*RefreshResult, error)
}

// Registry maps provider names to adapters. It is built once at startup
// and read-only afterwards, so lookups need no locking. Adding a provider
// means registering a new variant here, never branching on provider name
// strings at call sites.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}

	return &Registry{adapters: m}
}

// Lookup resolves a provider name to its adapter.
func (r *Registry) Lookup(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider: unsupported provider %q", name)
	}

	return a, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
