package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// AzureIdentitySource obtains tokens through the Azure SDK's
// ClientSecretCredential instead of a raw OAuth2 exchange.
type AzureIdentitySource struct {
	cred     *azidentity.ClientSecretCredential
	tenantID string
	clientID string
}

// NewAzureIdentitySource builds a credential against authorityHost. SDK
// retries are disabled; Cache.Run owns the retry schedule.
func NewAzureIdentitySource(authorityHost, tenantID, clientID, clientSecret string, client *http.Client) (*AzureIdentitySource, error) {
	opts := azidentity.ClientSecretCredentialOptions{}
	opts.Cloud.ActiveDirectoryAuthorityHost = authorityHost
	opts.Transport = client
	opts.Retry = policy.RetryOptions{MaxRetries: -1}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, &opts)
	if err != nil {
		return nil, fmt.Errorf("token: build azidentity credential: %w", err)
	}
	return &AzureIdentitySource{cred: cred, tenantID: tenantID, clientID: clientID}, nil
}

// Fetch implements Source.
func (s *AzureIdentitySource) Fetch(ctx context.Context) (string, time.Time, error) {
	tok, err := s.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{GraphScope}})
	if err != nil {
		return "", time.Time{}, err
	}
	return tok.Token, tok.ExpiresOn, nil
}

func (s *AzureIdentitySource) String() string {
	return fmt.Sprintf("azidentity(tenant=%s, client_id=%s)", s.tenantID, s.clientID)
}
