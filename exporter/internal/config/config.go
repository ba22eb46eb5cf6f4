package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from both file and environment.
const (
	DefaultAuthMode       = AuthModeOAuth2
	DefaultAuthorityHost  = "https://login.microsoftonline.com"
	DefaultGraphEndpoint  = "https://graph.microsoft.com/v1.0"
	DefaultListenAddress  = "0.0.0.0"
	DefaultPort           = 8000
	DefaultRequestTimeout = 5 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Token acquisition backends.
const (
	AuthModeOAuth2     = "oauth2"
	AuthModeAzIdentity = "azidentity"
)

// Config is the top-level exporter configuration.
type Config struct {
	Azure    AzureConfig    `yaml:"azure"`
	Exporter ExporterConfig `yaml:"exporter"`
	Log      LogConfig      `yaml:"log"`

	// Source is the file the config was read from, or empty when the file
	// was absent and only defaults and environment were used.
	Source string `yaml:"-"`
}

// AzureConfig identifies the tenant and the app registration the exporter
// authenticates as.
type AzureConfig struct {
	// TenantID is the directory to inspect: a GUID or a verified domain.
	TenantID string `yaml:"tenant_id"`

	// ClientID is the application (client) ID of the exporter's own registration.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the exporter's client secret. Prefer AASM_AZURE_CLIENT_SECRET.
	ClientSecret string `yaml:"client_secret"`

	// AuthMode selects the token backend: oauth2 | azidentity.
	AuthMode string `yaml:"auth_mode"`

	// AuthorityHost is the Entra ID login host. Override for sovereign clouds.
	AuthorityHost string `yaml:"authority_host"`

	// GraphEndpoint is the Graph base URL including the API version.
	GraphEndpoint string `yaml:"graph_endpoint"`
}

// TokenURL returns the v2.0 token endpoint for the configured tenant.
func (a AzureConfig) TokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", trimSlash(a.AuthorityHost), a.TenantID)
}

// ExporterConfig controls the HTTP surface and outbound calls.
type ExporterConfig struct {
	ListenAddress string `yaml:"listen_address"`
	Port          int    `yaml:"port"`

	// RequestTimeout bounds every outbound call (token exchange, Graph page).
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns the host:port the HTTP server binds.
func (e ExporterConfig) Addr() string {
	return net.JoinHostPort(e.ListenAddress, fmt.Sprint(e.Port))
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps Level onto a slog.Level. Unknown values map to Info;
// validate rejects them before this is called in practice.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads the YAML file at path, applies AASM_* environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// environment-only deployment
		case err != nil:
			return nil, fmt.Errorf("config: read file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse yaml: %w", err)
			}
			cfg.Source = path
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Azure: AzureConfig{
			AuthMode:      DefaultAuthMode,
			AuthorityHost: DefaultAuthorityHost,
			GraphEndpoint: DefaultGraphEndpoint,
		},
		Exporter: ExporterConfig{
			ListenAddress:  DefaultListenAddress,
			Port:           DefaultPort,
			RequestTimeout: DefaultRequestTimeout,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// domainRe accepts tenant domains such as contoso.onmicrosoft.com.
var domainRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)+$`)

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	az := cfg.Azure
	if az.TenantID == "" {
		return fmt.Errorf("azure.tenant_id is required")
	}
	if _, err := uuid.Parse(az.TenantID); err != nil && !domainRe.MatchString(az.TenantID) {
		return fmt.Errorf("azure.tenant_id %q is neither a GUID nor a domain name", az.TenantID)
	}
	if az.ClientID == "" {
		return fmt.Errorf("azure.client_id is required")
	}
	if _, err := uuid.Parse(az.ClientID); err != nil {
		return fmt.Errorf("azure.client_id %q is not a GUID: %w", az.ClientID, err)
	}
	if az.ClientSecret == "" {
		return fmt.Errorf("azure.client_secret is required")
	}
	switch az.AuthMode {
	case AuthModeOAuth2, AuthModeAzIdentity:
	default:
		return fmt.Errorf("azure.auth_mode %q unknown: want oauth2|azidentity", az.AuthMode)
	}
	if err := httpsURL("azure.authority_host", az.AuthorityHost); err != nil {
		return err
	}
	if err := httpsURL("azure.graph_endpoint", az.GraphEndpoint); err != nil {
		return err
	}

	ex := cfg.Exporter
	if ex.Port <= 0 || ex.Port > 65535 {
		return fmt.Errorf("exporter.port %d is out of range [1, 65535]", ex.Port)
	}
	if ex.RequestTimeout <= 0 {
		return fmt.Errorf("exporter.request_timeout must be positive")
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}

func httpsURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute https URL", field, raw)
	}
	return nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
