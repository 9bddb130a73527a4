package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// refreshAccessToken performs one refresh_token grant against the vendor's
// token endpoint and swaps the new access token into place. Concurrent
// refreshes for the same connection are tolerated; the last token wins.
func refreshAccessToken(ctx context.Context, client *http.Client, conf *oauth2.Config, refreshToken string, accessToken *string, onToken TokenUpdateFunc) error {
	if refreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	// Route the oauth2 exchange through our HTTP client so tests and
	// timeouts apply to the refresh call too.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return err
	}

	*accessToken = token.AccessToken
	if onToken != nil {
		expiry := token.Expiry
		if expiry.IsZero() {
			expiry = time.Now().Add(time.Hour)
		}
		onToken(ctx, token.AccessToken, expiry)
	}
	return nil
}
