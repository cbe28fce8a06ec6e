package credential

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/store"
)

// fakeStore is an in-memory credential store safe for concurrent use.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*store.CredentialRecord
	puts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*store.CredentialRecord)}
}

func (f *fakeStore) GetCredential(_ context.Context, providerName, accountID string) (*store.CredentialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[providerName+"/"+accountID]
	if !ok {
		return nil, nil //nolint:nilnil // nil record means "not found"
	}

	clone := *rec

	return &clone, nil
}

func (f *fakeStore) PutCredential(_ context.Context, rec *store.CredentialRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *rec
	f.records[rec.Provider+"/"+rec.AccountID] = &clone
	f.puts++

	return nil
}

// fakeAdapter implements provider.Adapter with a programmable Refresh.
type fakeAdapter struct {
	refreshFunc  func(ctx context.Context, refreshToken, tokenEndpoint string, scopes []string) (*provider.RefreshResult, error)
	refreshCalls atomic.Int32
}

func (f *fakeAdapter) Name() string { return "google" }

func (f *fakeAdapter) ListObjects(context.Context, string, string, string) ([]*store.ObjectRecord, error) {
	panic("not used")
}

func (f *fakeAdapter) FindFolder(context.Context, string, string, string, string) (*store.ObjectRecord, error) {
	panic("not used")
}

func (f *fakeAdapter) CreateFolder(context.Context, string, string, string, string) (*store.ObjectRecord, error) {
	panic("not used")
}

func (f *fakeAdapter) UploadObject(context.Context, string, string, string, string, string, []byte) (*store.ObjectRecord, error) {
	panic("not used")
}

func (f *fakeAdapter) ObjectExists(context.Context, string, string) (bool, error) {
	panic("not used")
}

func (f *fakeAdapter) SetPublicReader(context.Context, string, string) error {
	panic("not used")
}

func (f *fakeAdapter) GetQuota(context.Context, string, string) (*store.QuotaSnapshot, error) {
	panic("not used")
}

func (f *fakeAdapter) Refresh(ctx context.Context, refreshToken, tokenEndpoint string, scopes []string) (*provider.RefreshResult, error) {
	f.refreshCalls.Add(1)

	return f.refreshFunc(ctx, refreshToken, tokenEndpoint, scopes)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(st Store, adapter provider.Adapter, now time.Time) *Orchestrator {
	o := NewOrchestrator(st, provider.NewRegistry(adapter), testLogger())
	o.now = func() time.Time { return now }

	return o
}

func freshRecord(now time.Time) *store.CredentialRecord {
	return &store.CredentialRecord{
		Provider:      "google",
		AccountID:     "user@example.com",
		AccessToken:   "at-fresh",
		RefreshToken:  "rt-1",
		TokenEndpoint: "https://oauth2.googleapis.com/token",
		Expiry:        now.Add(time.Hour),
		Scopes:        []string{"scope-a"},
	}
}

func TestAcquireFreshNoRemoteCall(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	require.NoError(t, st.PutCredential(context.Background(), freshRecord(now)))

	adapter := &fakeAdapter{}
	o := newTestOrchestrator(st, adapter, now)

	token, rec, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", token)
	assert.Equal(t, "rt-1", rec.RefreshToken)
	assert.Zero(t, adapter.refreshCalls.Load())
}

func TestAcquireMissingRecord(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), &fakeAdapter{}, time.Now())

	_, _, err := o.Acquire(context.Background(), "google", "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcquireStaleRefreshesAndPersists(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	stale := freshRecord(now)
	stale.AccessToken = "at-old"
	stale.Expiry = now.Add(30 * time.Second) // inside the staleness margin
	require.NoError(t, st.PutCredential(context.Background(), stale))

	adapter := &fakeAdapter{
		refreshFunc: func(_ context.Context, refreshToken, tokenEndpoint string, scopes []string) (*provider.RefreshResult, error) {
			assert.Equal(t, "rt-1", refreshToken)
			assert.Equal(t, "https://oauth2.googleapis.com/token", tokenEndpoint)
			assert.Equal(t, []string{"scope-a"}, scopes)

			return &provider.RefreshResult{
				AccessToken: "at-new",
				Expiry:      now.Add(time.Hour),
			}, nil
		},
	}

	o := newTestOrchestrator(st, adapter, now)

	token, rec, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at-new", token)
	assert.Equal(t, "rt-1", rec.RefreshToken, "refresh token retained when provider omits it")

	persisted, err := st.GetCredential(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at-new", persisted.AccessToken)
}

func TestAcquireZeroExpiryTreatedAsStale(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	rec := freshRecord(now)
	rec.Expiry = time.Time{}
	require.NoError(t, st.PutCredential(context.Background(), rec))

	adapter := &fakeAdapter{
		refreshFunc: func(context.Context, string, string, []string) (*provider.RefreshResult, error) {
			return &provider.RefreshResult{AccessToken: "at-new", Expiry: now.Add(time.Hour)}, nil
		},
	}

	o := newTestOrchestrator(st, adapter, now)

	token, _, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at-new", token)
	assert.Equal(t, int32(1), adapter.refreshCalls.Load())
}

func TestAcquireRotatedRefreshTokenPersisted(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	stale := freshRecord(now)
	stale.Expiry = now.Add(-time.Minute)
	require.NoError(t, st.PutCredential(context.Background(), stale))

	adapter := &fakeAdapter{
		refreshFunc: func(context.Context, string, string, []string) (*provider.RefreshResult, error) {
			return &provider.RefreshResult{
				AccessToken:  "at-new",
				RefreshToken: "rt-2",
				Expiry:       now.Add(time.Hour),
			}, nil
		},
	}

	o := newTestOrchestrator(st, adapter, now)

	_, rec, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", rec.RefreshToken)

	persisted, err := st.GetCredential(context.Background(), "google", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", persisted.RefreshToken)
}

func TestAcquireRefreshFailureRetainsRecord(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	stale := freshRecord(now)
	stale.Expiry = now.Add(-time.Minute)
	require.NoError(t, st.PutCredential(context.Background(), stale))

	remoteErr := &provider.Error{Provider: "google", StatusCode: 401, Err: provider.ErrAuth}
	adapter := &fakeAdapter{
		refreshFunc: func(context.Context, string, string, []string) (*provider.RefreshResult, error) {
			return nil, remoteErr
		},
	}

	o := newTestOrchestrator(st, adapter, now)

	_, _, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.Error(t, err)

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "user@example.com", refreshErr.AccountID)
	assert.ErrorIs(t, err, provider.ErrAuth)

	// The stored record survives a failed refresh.
	persisted, getErr := st.GetCredential(context.Background(), "google", "user@example.com")
	require.NoError(t, getErr)
	require.NotNil(t, persisted)
	assert.Equal(t, "rt-1", persisted.RefreshToken)
}

func TestAcquireConcurrentSingleFlight(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	stale := freshRecord(now)
	stale.Expiry = now.Add(-time.Minute)
	require.NoError(t, st.PutCredential(context.Background(), stale))

	started := make(chan struct{})
	release := make(chan struct{})

	adapter := &fakeAdapter{
		refreshFunc: func(context.Context, string, string, []string) (*provider.RefreshResult, error) {
			close(started)
			<-release

			return &provider.RefreshResult{AccessToken: "at-new", Expiry: now.Add(time.Hour)}, nil
		},
	}

	o := newTestOrchestrator(st, adapter, now)

	const callers = 8

	var wg sync.WaitGroup

	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i

		wg.Add(1)

		go func() {
			defer wg.Done()

			tokens[i], _, errs[i] = o.Acquire(context.Background(), "google", "user@example.com")
		}()
	}

	// Hold every caller on the in-flight refresh, then let it finish.
	<-started
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-new", tokens[i])
	}

	assert.Equal(t, int32(1), adapter.refreshCalls.Load(), "one refresh shared by all callers")
}

func TestAcquireUnknownProvider(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()

	stale := &store.CredentialRecord{Provider: "dropbox", AccountID: "u", RefreshToken: "rt"}
	require.NoError(t, st.PutCredential(context.Background(), stale))

	o := newTestOrchestrator(st, &fakeAdapter{}, now)

	_, _, err := o.Acquire(context.Background(), "dropbox", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(newFakeStore(), &fakeAdapter{}, now)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"zero expiry", time.Time{}, true},
		{"already expired", now.Add(-time.Minute), true},
		{"inside margin", now.Add(StalenessMargin / 2), true},
		{"exactly at margin", now.Add(StalenessMargin), true},
		{"well beyond margin", now.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.isStale(&store.CredentialRecord{Expiry: tt.expiry})
			assert.Equal(t, tt.want, got)
		})
	}
}

// errorStore fails GetCredential to exercise error propagation.
type errorStore struct{}

func (errorStore) GetCredential(context.Context, string, string) (*store.CredentialRecord, error) {
	return nil, errors.New("disk on fire")
}

func (errorStore) PutCredential(context.Context, *store.CredentialRecord) error {
	return nil
}

func TestAcquireStoreError(t *testing.T) {
	o := NewOrchestrator(errorStore{}, provider.NewRegistry(&fakeAdapter{}), testLogger())

	_, _, err := o.Acquire(context.Background(), "google", "user@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}
