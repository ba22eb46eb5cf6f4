package types

import (
	"fmt"
	"strings"
	"time"
)

// CredentialKind distinguishes the two credential lists of an application.
type CredentialKind string

const (
	// KindPassword is a client secret (passwordCredentials).
	KindPassword CredentialKind = "password"
	// KindKey is a certificate (keyCredentials).
	KindKey CredentialKind = "key"
)

// Credential is one secret or certificate registered on an application.
type Credential struct {
	// KeyID is unique within the owning application and kind.
	KeyID string `json:"keyId"`

	// DisplayName is the optional human label set when the credential was created.
	DisplayName string `json:"displayName,omitempty"`

	// Hint holds the first characters of a client secret. Empty for certificates.
	Hint string `json:"hint,omitempty"`

	CustomKeyIdentifier string `json:"customKeyIdentifier,omitempty"`

	// StartDateTime is nil when Graph does not report a start.
	StartDateTime *time.Time `json:"startDateTime,omitempty"`

	// EndDateTime is the expiry instant. A zero value means Graph omitted it.
	EndDateTime time.Time `json:"endDateTime"`
}

// String renders "keyId (label): end".
func (c Credential) String() string {
	label := ""
	if c.DisplayName != "" {
		label = " (" + c.DisplayName + ")"
	}
	return fmt.Sprintf("%s%s: %s", c.KeyID, label, c.EndDateTime.UTC().Format(time.RFC3339))
}

// Application is one app registration with its credentials.
type Application struct {
	AppID               string       `json:"appId"`
	DisplayName         string       `json:"displayName"`
	PasswordCredentials []Credential `json:"passwordCredentials"`
	KeyCredentials      []Credential `json:"keyCredentials"`
}

// KindedCredential pairs a credential with the list it came from.
type KindedCredential struct {
	Kind CredentialKind
	Credential
}

// Credentials returns the password credentials followed by the key
// credentials, each in upstream order.
func (a Application) Credentials() []KindedCredential {
	out := make([]KindedCredential, 0, len(a.PasswordCredentials)+len(a.KeyCredentials))
	for _, c := range a.PasswordCredentials {
		out = append(out, KindedCredential{Kind: KindPassword, Credential: c})
	}
	for _, c := range a.KeyCredentials {
		out = append(out, KindedCredential{Kind: KindKey, Credential: c})
	}
	return out
}

// String renders a multi-line summary of the application, one line per
// credential, used for debug logging.
func (a Application) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s):", a.DisplayName, a.AppID)
	writeList(&b, "Password Credentials", a.PasswordCredentials)
	writeList(&b, "Key Credentials", a.KeyCredentials)
	return b.String()
}

func writeList(b *strings.Builder, title string, creds []Credential) {
	b.WriteString("\n\t" + title + ":")
	if len(creds) == 0 {
		b.WriteString(" None")
		return
	}
	for _, c := range creds {
		b.WriteString("\n\t\t" + c.String())
	}
}
