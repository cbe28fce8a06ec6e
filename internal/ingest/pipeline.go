// Package ingest orchestrates multi-file and folder-tree uploads into a
// linked account: it resolves or creates intermediate folders segment by
// segment, uploads file bytes, and mirrors every resulting object into
// the metadata index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/rootfolder"
	"github.com/cloudhive/hivecore/internal/store"
)

// quotaRefreshTimeout bounds the best-effort quota refresh scheduled after
// a pipeline run. It runs detached from the request context.
const quotaRefreshTimeout = 30 * time.Second

// Entry is one unit of an ingest call: file bytes destined for a relative
// path. A bare file name uploads directly under the call's parent; a path
// with folder segments ("reports/2024/summary.pdf") has its intermediate
// folders resolved or created on the way down.
type Entry struct {
	Path     string
	MimeType string
	Data     []byte
}

// EntryResult is the per-entry outcome. Failures abort only their own
// entry; completed siblings are never rolled back, since remote mutations
// cannot be transactionally undone.
type EntryResult struct {
	Path   string
	Record *store.ObjectRecord
	Err    error
}

// Result is the outcome of one ingest call.
type Result struct {
	BatchID string
	Entries []EntryResult
}

// Failed returns the number of entries that did not complete.
func (r *Result) Failed() int {
	n := 0

	for i := range r.Entries {
		if r.Entries[i].Err != nil {
			n++
		}
	}

	return n
}

// ErrEmptyPath is returned for an entry whose path has no file name.
var ErrEmptyPath = errors.New("ingest: entry path is empty")

// Index is the metadata index surface the pipeline writes through. The
// pipeline never mutates records directly.
type Index interface {
	UpsertObject(ctx context.Context, rec *store.ObjectRecord) (bool, error)
}

// QuotaRefresher refreshes one account's quota snapshot. The pipeline
// schedules it asynchronously after each run, best-effort.
type QuotaRefresher interface {
	RefreshAccount(ctx context.Context, provider, accountID string) error
}

// Pipeline wires folder resolution, upload, and index mirroring together.
type Pipeline struct {
	index    Index
	tokens   rootfolder.TokenSource
	roots    *rootfolder.Resolver
	registry *provider.Registry
	quotas   QuotaRefresher
	logger   *slog.Logger

	// scheduleAsync runs the post-ingest quota refresh. Defaults to
	// spawning a goroutine; tests replace it to run synchronously.
	scheduleAsync func(func())
}

// NewPipeline builds an ingestion pipeline. quotas may be nil, in which
// case no post-ingest refresh is scheduled.
func NewPipeline(
	index Index,
	tokens rootfolder.TokenSource,
	roots *rootfolder.Resolver,
	registry *provider.Registry,
	quotas QuotaRefresher,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		index:         index,
		tokens:        tokens,
		roots:         roots,
		registry:      registry,
		quotas:        quotas,
		logger:        logger,
		scheduleAsync: func(f func()) { go f() },
	}
}

// Ingest uploads the given entries into the account under parentID, or
// under the account's resolved application root when parentID is empty.
// Entries are processed in order; each folder segment re-checks remote
// existence before creating, so partial trees uploaded across multiple
// calls merge instead of duplicating folders.
//
// A partial failure is not a hard failure: the error is recorded on the
// failing entry and processing continues with the next one.
func (p *Pipeline) Ingest(
	ctx context.Context, providerName, accountID, parentID string, entries []Entry,
) (*Result, error) {
	adapter, err := p.registry.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	baseParent := parentID
	if baseParent == "" {
		baseParent, err = p.roots.EnsureRoot(ctx, providerName, accountID)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{BatchID: uuid.NewString()}

	p.logger.Info("starting ingest batch",
		slog.String("batch_id", result.BatchID),
		slog.String("provider", providerName),
		slog.String("account_id", accountID),
		slog.String("parent_id", baseParent),
		slog.Int("entries", len(entries)),
	)

	for i := range entries {
		rec, entryErr := p.ingestEntry(ctx, adapter, providerName, accountID, baseParent, &entries[i])
		if entryErr != nil {
			p.logger.Warn("ingest entry failed",
				slog.String("batch_id", result.BatchID),
				slog.String("path", entries[i].Path),
				slog.String("error", entryErr.Error()),
			)
		}

		result.Entries = append(result.Entries, EntryResult{
			Path:   entries[i].Path,
			Record: rec,
			Err:    entryErr,
		})
	}

	p.logger.Info("ingest batch complete",
		slog.String("batch_id", result.BatchID),
		slog.Int("entries", len(result.Entries)),
		slog.Int("failed", result.Failed()),
	)

	p.scheduleQuotaRefresh(providerName, accountID)

	return result, nil
}

// ingestEntry walks one entry's folder segments and uploads its bytes.
func (p *Pipeline) ingestEntry(
	ctx context.Context,
	adapter provider.Adapter,
	providerName, accountID, baseParent string,
	entry *Entry,
) (*store.ObjectRecord, error) {
	folders, fileName, err := splitPath(entry.Path)
	if err != nil {
		return nil, err
	}

	// Acquire per entry so long batches never run past token expiry.
	accessToken, _, err := p.tokens.Acquire(ctx, providerName, accountID)
	if err != nil {
		return nil, err
	}

	parent := baseParent

	for _, folder := range folders {
		parent, err = p.resolveFolder(ctx, adapter, accessToken, accountID, folder, parent)
		if err != nil {
			return nil, err
		}
	}

	uploaded, err := adapter.UploadObject(ctx, accessToken, accountID, fileName, entry.MimeType, parent, entry.Data)
	if err != nil {
		return nil, err
	}

	if _, err := p.index.UpsertObject(ctx, uploaded); err != nil {
		return nil, fmt.Errorf("ingest: mirroring uploaded object %s: %w", uploaded.ExternalID, err)
	}

	return uploaded, nil
}

// resolveFolder returns the id of the named folder under parent, reusing
// a remotely existing folder or creating a new one. Either way the
// folder's metadata is mirrored into the index; a reused folder may have
// changed remotely since it was last seen.
func (p *Pipeline) resolveFolder(
	ctx context.Context,
	adapter provider.Adapter,
	accessToken, accountID, name, parent string,
) (string, error) {
	existing, err := adapter.FindFolder(ctx, accessToken, accountID, name, parent)
	if err != nil {
		return "", fmt.Errorf("ingest: resolving folder %q: %w", name, err)
	}

	folder := existing
	if folder == nil {
		folder, err = adapter.CreateFolder(ctx, accessToken, accountID, name, parent)
		if err != nil {
			return "", fmt.Errorf("ingest: creating folder %q: %w", name, err)
		}
	}

	if _, err := p.index.UpsertObject(ctx, folder); err != nil {
		return "", fmt.Errorf("ingest: mirroring folder %q: %w", name, err)
	}

	return folder.ExternalID, nil
}

// scheduleQuotaRefresh kicks off a detached, best-effort quota refresh.
// Its failure never affects the ingestion result.
func (p *Pipeline) scheduleQuotaRefresh(providerName, accountID string) {
	if p.quotas == nil {
		return
	}

	p.scheduleAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), quotaRefreshTimeout)
		defer cancel()

		if err := p.quotas.RefreshAccount(ctx, providerName, accountID); err != nil {
			p.logger.Warn("post-ingest quota refresh failed",
				slog.String("provider", providerName),
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// splitPath normalizes an entry path into folder segments and a file
// name. Backslashes are accepted as separators; empty segments are
// dropped.
func splitPath(path string) ([]string, string, error) {
	parts := strings.Split(strings.ReplaceAll(path, `\`, "/"), "/")

	segments := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}

	if len(segments) == 0 {
		return nil, "", ErrEmptyPath
	}

	return segments[:len(segments)-1], segments[len(segments)-1], nil
}
