// Package store persists all locally mirrored state for linked cloud
// accounts: OAuth credentials, object metadata, root folder references,
// and quota snapshots. Everything lives in a single embedded SQLite
// database with WAL mode; every write is atomic per natural key.
package store

import "time"

// CredentialRecord is one account's OAuth credential for one provider.
// Identity key = (Provider, AccountID). Mutated only by the refresh
// orchestrator; removed only by an explicit unlink.
type CredentialRecord struct {
	Provider      string
	AccountID     string
	AccessToken   string
	RefreshToken  string
	TokenEndpoint string
	// Expiry is zero when the provider did not report one. A zero expiry
	// is treated as already stale by the orchestrator.
	Expiry time.Time
	Scopes []string
}

// ObjectRecord is locally mirrored metadata for one remote file or folder.
// Identity key = (ExternalID, Provider, AccountID); providers issue ids
// independently, so the same external id under a different account is a
// distinct record.
type ObjectRecord struct {
	ExternalID string
	Provider   string
	AccountID  string
	Name       string
	MimeType   string
	// ParentIDs is ordered; ParentIDs[0] is the primary parent and
	// determines the record's position in the mirrored hierarchy. Empty
	// means the object is a root-level item for its account.
	ParentIDs []string
	Starred   bool
	Trashed   bool
	// Size is nil when the provider reports no byte count (folders,
	// provider-native documents).
	Size           *int64
	ThumbnailLink  string
	IconLink       string
	WebViewLink    string
	WebContentLink string
	CreatedTime    time.Time
	ModifiedTime   time.Time
}

// IsFolder reports whether the record's MIME type marks it as a folder.
func (o *ObjectRecord) IsFolder() bool {
	return o.MimeType == FolderMimeType
}

// PrimaryParent returns ParentIDs[0], or "" for root-level items.
func (o *ObjectRecord) PrimaryParent() string {
	if len(o.ParentIDs) == 0 {
		return ""
	}

	return o.ParentIDs[0]
}

// FolderMimeType is the Google Drive folder MIME type, used as the
// canonical folder marker throughout the index.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootFolderRef caches the application root folder id for one account.
// Pure cache: when the remote folder disappears, the resolver recreates
// it and overwrites the stale id in place.
type RootFolderRef struct {
	Provider  string
	AccountID string
	FolderID  string
}

// QuotaSnapshot is a cached view of one account's remote storage quota.
// Always safe to discard and recompute.
type QuotaSnapshot struct {
	Provider    string
	AccountID   string
	Limit       int64
	Usage       int64
	UsageTrash  int64
	RefreshedAt time.Time
}

// Key returns the provider_account key the quota cache is stored under,
// matching the layout consumers already expect ("google_user@example.com").
func (q *QuotaSnapshot) Key() string {
	return q.Provider + "_" + q.AccountID
}
