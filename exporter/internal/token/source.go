package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// GraphScope requests every application permission granted to the client on
// Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// ErrMissingExpiry is returned when the token response has no usable lifetime.
var ErrMissingExpiry = errors.New("token response carries no expiry")

// ClientCredentialsSource exchanges a client id/secret pair for a token at
// an OAuth2 token endpoint.
type ClientCredentialsSource struct {
	cfg    clientcredentials.Config
	client *http.Client
}

// NewClientCredentialsSource builds a source for tokenURL. client carries the
// outbound timeout and is used for every exchange.
func NewClientCredentialsSource(tokenURL, clientID, clientSecret string, client *http.Client) *ClientCredentialsSource {
	return &ClientCredentialsSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{GraphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
	}
}

// Fetch implements Source.
func (s *ClientCredentialsSource) Fetch(ctx context.Context) (string, time.Time, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	if tok.Expiry.IsZero() {
		return "", time.Time{}, ErrMissingExpiry
	}
	return tok.AccessToken, tok.Expiry, nil
}

func (s *ClientCredentialsSource) String() string {
	return fmt.Sprintf("oauth2(token_url=%s, client_id=%s)", s.cfg.TokenURL, s.cfg.ClientID)
}
