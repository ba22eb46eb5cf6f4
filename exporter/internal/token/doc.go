// Package token keeps one bearer token for the exporter's client-credentials
// identity.
//
// Cache.Run is the single writer: it refreshes the token once per lifetime
// (minus SafetyMargin) and retries every RetryInterval after a failure. A
// failed refresh clears the cached token, so Current never hands out a token
// whose last refresh attempt failed.
//
// Cache.Current is the only read path. It copies the secret under a read lock
// and never performs I/O, so readiness checks and scrapes are never blocked
// by the authorization server.
//
// Two Source implementations are provided: ClientCredentialsSource
// (golang.org/x/oauth2) and AzureIdentitySource (azidentity).
package token
