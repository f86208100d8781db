package channel

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

// tokenFetcher performs the client-credentials exchange with the plain HTTP
// client so token requests never recurse through the authenticated path.
type tokenFetcher struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	timeout    time.Duration
}

func (f *tokenFetcher) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	token, err := f.cfg.Token(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch channel access token")
	}
	return token, nil
}

// newTokenSource caches the access token for the whole process and refreshes
// it once it is within margin of expiry.
func newTokenSource(clientID, clientSecret, tokenURL string, httpClient *http.Client, timeout, margin time.Duration) oauth2.TokenSource {
	fetcher := &tokenFetcher{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		timeout:    timeout,
	}
	return oauth2.ReuseTokenSourceWithExpiry(nil, fetcher, margin)
}
