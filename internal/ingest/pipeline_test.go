package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/rootfolder"
	"github.com/cloudhive/hivecore/internal/store"
)

// fakeIndex records upserts.
type fakeIndex struct {
	upserts []*store.ObjectRecord
}

func (f *fakeIndex) UpsertObject(_ context.Context, rec *store.ObjectRecord) (bool, error) {
	f.upserts = append(f.upserts, rec)

	return true, nil
}

// fakeTokens always yields the same access token.
type fakeTokens struct{}

func (fakeTokens) Acquire(context.Context, string, string) (string, *store.CredentialRecord, error) {
	return "tok", &store.CredentialRecord{}, nil
}

// fakeRootStore backs the root folder resolver with a pre-seeded ref.
type fakeRootStore struct {
	rootID string
}

func (f *fakeRootStore) GetRootFolder(context.Context, string, string) (string, error) {
	return f.rootID, nil
}

func (f *fakeRootStore) SetRootFolder(_ context.Context, _, _, folderID string) error {
	f.rootID = folderID

	return nil
}

// fakeQuotas records refresh requests.
type fakeQuotas struct {
	refreshed []string
	err       error
}

func (f *fakeQuotas) RefreshAccount(_ context.Context, providerName, accountID string) error {
	f.refreshed = append(f.refreshed, providerName+"/"+accountID)

	return f.err
}

// fakeAdapter simulates a remote folder tree. Folders are keyed
// parentID+"/"+name; uploads are keyed by generated ids.
type fakeAdapter struct {
	folders   map[string]*store.ObjectRecord
	nextID    int
	uploads   int
	creates   int
	uploadErr func(name string) error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{folders: make(map[string]*store.ObjectRecord)}
}

func (f *fakeAdapter) Name() string { return "google" }

func (f *fakeAdapter) ListObjects(context.Context, string, string, string) ([]*store.ObjectRecord, error) {
	panic("not used")
}

func (f *fakeAdapter) FindFolder(_ context.Context, _, _, name, parentID string) (*store.ObjectRecord, error) {
	rec, ok := f.folders[parentID+"/"+name]
	if !ok {
		return nil, nil //nolint:nilnil // nil record means "no such folder"
	}

	return rec, nil
}

func (f *fakeAdapter) CreateFolder(_ context.Context, _, accountID, name, parentID string) (*store.ObjectRecord, error) {
	f.creates++
	f.nextID++

	rec := &store.ObjectRecord{
		ExternalID: fmt.Sprintf("folder-%d", f.nextID),
		Provider:   "google",
		AccountID:  accountID,
		Name:       name,
		MimeType:   store.FolderMimeType,
		ParentIDs:  []string{parentID},
	}
	f.folders[parentID+"/"+name] = rec

	return rec, nil
}

func (f *fakeAdapter) UploadObject(
	_ context.Context, _, accountID, name, mimeType, parentID string, data []byte,
) (*store.ObjectRecord, error) {
	if f.uploadErr != nil {
		if err := f.uploadErr(name); err != nil {
			return nil, err
		}
	}

	f.uploads++
	f.nextID++

	size := int64(len(data))

	return &store.ObjectRecord{
		ExternalID: fmt.Sprintf("file-%d", f.nextID),
		Provider:   "google",
		AccountID:  accountID,
		Name:       name,
		MimeType:   mimeType,
		ParentIDs:  []string{parentID},
		Size:       &size,
	}, nil
}

func (f *fakeAdapter) ObjectExists(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeAdapter) SetPublicReader(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) GetQuota(context.Context, string, string) (*store.QuotaSnapshot, error) {
	panic("not used")
}

func (f *fakeAdapter) Refresh(context.Context, string, string, []string) (*provider.RefreshResult, error) {
	panic("not used")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPipeline wires a pipeline over fakes, with the async quota hook
// made synchronous.
func newTestPipeline(adapter *fakeAdapter, quotas *fakeQuotas) (*Pipeline, *fakeIndex) {
	index := &fakeIndex{}
	registry := provider.NewRegistry(adapter)
	roots := rootfolder.NewResolver(&fakeRootStore{rootID: "root-1"}, fakeTokens{}, registry, testLogger())

	var q QuotaRefresher
	if quotas != nil {
		q = quotas
	}

	p := NewPipeline(index, fakeTokens{}, roots, registry, q, testLogger())
	p.scheduleAsync = func(f func()) { f() }

	return p, index
}

func TestIngestSingleFileUnderParent(t *testing.T) {
	adapter := newFakeAdapter()
	p, index := newTestPipeline(adapter, nil)

	result, err := p.Ingest(context.Background(), "google", "user@example.com", "folder-x",
		[]Entry{{Path: "notes.txt", MimeType: "text/plain", Data: []byte("hi")}})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.NoError(t, result.Entries[0].Err)
	assert.NotEmpty(t, result.BatchID)
	assert.Zero(t, result.Failed())

	require.Len(t, index.upserts, 1)
	assert.Equal(t, "notes.txt", index.upserts[0].Name)
	assert.Equal(t, []string{"folder-x"}, index.upserts[0].ParentIDs)
	assert.Zero(t, adapter.creates)
}

func TestIngestWalksFolderSegments(t *testing.T) {
	adapter := newFakeAdapter()
	p, index := newTestPipeline(adapter, nil)

	result, err := p.Ingest(context.Background(), "google", "user@example.com", "",
		[]Entry{{Path: "reports/2026/summary.pdf", MimeType: "application/pdf", Data: []byte("x")}})
	require.NoError(t, err)
	require.NoError(t, result.Entries[0].Err)

	// Two folders created under the resolved root, then the file.
	assert.Equal(t, 2, adapter.creates)
	assert.Equal(t, 1, adapter.uploads)

	// Each folder and the file are mirrored into the index.
	require.Len(t, index.upserts, 3)
	assert.Equal(t, "reports", index.upserts[0].Name)
	assert.Equal(t, []string{"root-1"}, index.upserts[0].ParentIDs)
	assert.Equal(t, "2026", index.upserts[1].Name)
	assert.Equal(t, "summary.pdf", index.upserts[2].Name)
}

func TestIngestReusesExistingFolders(t *testing.T) {
	adapter := newFakeAdapter()
	p, _ := newTestPipeline(adapter, nil)

	entries := []Entry{
		{Path: "photos/2026/a.jpg", MimeType: "image/jpeg", Data: []byte("a")},
		{Path: "photos/2026/b.jpg", MimeType: "image/jpeg", Data: []byte("b")},
	}

	result, err := p.Ingest(context.Background(), "google", "user@example.com", "", entries)
	require.NoError(t, err)
	assert.Zero(t, result.Failed())

	// The second entry finds photos/ and photos/2026/ instead of
	// duplicating them.
	assert.Equal(t, 2, adapter.creates)
	assert.Equal(t, 2, adapter.uploads)
}

func TestIngestPartialFailureIsolatesEntry(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.uploadErr = func(name string) error {
		if name == "bad.bin" {
			return &provider.Error{Provider: "google", StatusCode: 507, Err: provider.ErrTransient}
		}

		return nil
	}

	p, _ := newTestPipeline(adapter, nil)

	entries := []Entry{
		{Path: "good-1.txt", MimeType: "text/plain", Data: []byte("a")},
		{Path: "bad.bin", Data: []byte("b")},
		{Path: "good-2.txt", MimeType: "text/plain", Data: []byte("c")},
	}

	result, err := p.Ingest(context.Background(), "google", "user@example.com", "folder-x", entries)
	require.NoError(t, err, "partial failure is not a hard failure")
	require.Len(t, result.Entries, 3)

	assert.NoError(t, result.Entries[0].Err)
	assert.Error(t, result.Entries[1].Err)
	assert.ErrorIs(t, result.Entries[1].Err, provider.ErrTransient)
	assert.NoError(t, result.Entries[2].Err, "later entries still processed")
	assert.Equal(t, 1, result.Failed())
}

func TestIngestEmptyPathFailsEntryOnly(t *testing.T) {
	adapter := newFakeAdapter()
	p, _ := newTestPipeline(adapter, nil)

	result, err := p.Ingest(context.Background(), "google", "user@example.com", "folder-x",
		[]Entry{{Path: "  /  ", Data: []byte("a")}})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.ErrorIs(t, result.Entries[0].Err, ErrEmptyPath)
}

func TestIngestSchedulesQuotaRefresh(t *testing.T) {
	adapter := newFakeAdapter()
	quotas := &fakeQuotas{}
	p, _ := newTestPipeline(adapter, quotas)

	_, err := p.Ingest(context.Background(), "google", "user@example.com", "folder-x",
		[]Entry{{Path: "a.txt", MimeType: "text/plain", Data: []byte("a")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"google/user@example.com"}, quotas.refreshed)
}

func TestIngestUnknownProvider(t *testing.T) {
	p, _ := newTestPipeline(newFakeAdapter(), nil)

	_, err := p.Ingest(context.Background(), "dropbox", "user@example.com", "folder-x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		folders  []string
		fileName string
		wantErr  bool
	}{
		{"bare file", "a.txt", nil, "a.txt", false},
		{"nested", "x/y/z.txt", []string{"x", "y"}, "z.txt", false},
		{"backslashes", `x\y\z.txt`, []string{"x", "y"}, "z.txt", false},
		{"leading and doubled slashes", "//x//z.txt", []string{"x"}, "z.txt", false},
		{"whitespace segments dropped", " x / /z.txt", []string{"x"}, "z.txt", false},
		{"empty", "", nil, "", true},
		{"only separators", "// /", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folders, fileName, err := splitPath(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrEmptyPath)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.fileName, fileName)

			if len(tt.folders) == 0 {
				assert.Empty(t, folders)
			} else {
				assert.Equal(t, tt.folders, folders)
			}
		})
	}
}

func TestResultFailedCount(t *testing.T) {
	r := &Result{Entries: []EntryResult{
		{Err: nil},
		{Err: errors.New("upload failed")},
		{Err: nil},
	}}

	assert.Equal(t, 1, r.Failed())
}
