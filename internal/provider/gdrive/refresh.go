package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/cloudhive/hivecore/internal/provider"
)

// Refresh exchanges a refresh token for a new access token at the given
// token endpoint using the standard refresh-token grant. The endpoint
// comes from the stored credential record so tests (and future Google
// endpoint changes) need no adapter rebuild.
//
// When the response includes a rotated refresh token, it is returned;
// otherwise RefreshToken is left empty and the caller retains the prior
// value.
func (a *Adapter) Refresh(ctx context.Context, refreshToken, tokenEndpoint string, scopes []string) (*provider.RefreshResult, error) {
	a.logger.Info("refreshing access token", slog.String("endpoint", tokenEndpoint))

	cfg := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenEndpoint},
		Scopes:       scopes,
	}

	// Route the grant through the adapter's HTTP client so the refresh
	// call carries the same bounded timeout as every other remote call.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.httpClient)

	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}

	result := &provider.RefreshResult{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}

	// oauth2 copies the old refresh token forward when the server omits
	// one; only a genuinely rotated token is reported upward.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		a.logger.Info("refresh token rotated by provider")

		result.RefreshToken = tok.RefreshToken
	}

	return result, nil
}

// classifyRefreshError normalizes oauth2 failures into the provider
// taxonomy. Definitive token-endpoint rejections (invalid_grant and
// friends arrive as 400/401) are authorization failures requiring
// re-linking; anything else is transport-level and transient.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		sentinel := provider.ErrAuth
		if retrieveErr.Response != nil && provider.IsRetryable(retrieveErr.Response.StatusCode) {
			sentinel = provider.ErrTransient
		}

		statusCode := 0
		if retrieveErr.Response != nil {
			statusCode = retrieveErr.Response.StatusCode
		}

		return &provider.Error{
			Provider:   ProviderName,
			StatusCode: statusCode,
			Message:    string(retrieveErr.Body),
			Err:        sentinel,
		}
	}

	return &provider.Error{
		Provider: ProviderName,
		Message:  fmt.Sprintf("token refresh failed: %v", err),
		Err:      provider.ErrTransient,
	}
}
