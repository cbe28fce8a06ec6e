package gdrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhive/hivecore/internal/provider"
)

func TestRefreshSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	result, err := a.Refresh(context.Background(), "rt-1", srv.URL, []string{"scope-a"})
	require.NoError(t, err)
	assert.Equal(t, "at-new", result.AccessToken)
	assert.False(t, result.Expiry.IsZero())
	assert.Empty(t, result.RefreshToken, "unrotated refresh token not reported")
}

func TestRefreshRotatedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-2"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	result, err := a.Refresh(context.Background(), "rt-1", srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "rt-2", result.RefreshToken)
}

func TestRefreshInvalidGrantIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.Refresh(context.Background(), "rt-revoked", srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrAuth)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Contains(t, perr.Message, "invalid_grant")
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.Refresh(context.Background(), "rt-1", srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTransient)
}

func TestRefreshEndpointUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // immediately unreachable

	a := newTestAdapter(t, srv.URL)

	_, err := a.Refresh(context.Background(), "rt-1", srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrTransient)
}
