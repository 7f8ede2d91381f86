package vault

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

// oauthRefresher is the default TokenRefresher: it asks the record's token
// endpoint for a fresh access token using the stored refresh token.
type oauthRefresher struct{}

func (oauthRefresher) Refresh(ctx context.Context, rec Record) (Record, error) {
	conf := oauthConfig(rec)

	stale := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.Expiry,
	}

	fresh, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		return Record{}, err
	}

	rec.AccessToken = fresh.AccessToken
	rec.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		rec.RefreshToken = fresh.RefreshToken
	}
	return rec, nil
}

// oauthConfig builds the OAuth2 client configuration carried by a record.
func oauthConfig(rec Record) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Scopes:       rec.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL: rec.TokenEndpoint,
		},
	}
}

// isInvalidGrant reports whether a refresh failure means the refresh token
// itself was rejected, which callers surface as a token-expiry condition.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	return strings.Contains(err.Error(), "invalid_grant")
}
