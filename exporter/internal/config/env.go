package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "AASM_"

// applyEnv overrides cfg with any AASM_* variables that are set.
// Set-but-empty variables are honoured, so an empty value clears a file value.
func applyEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"AZURE_TENANT_ID", &cfg.Azure.TenantID},
		{"AZURE_CLIENT_ID", &cfg.Azure.ClientID},
		{"AZURE_CLIENT_SECRET", &cfg.Azure.ClientSecret},
		{"AZURE_AUTH_MODE", &cfg.Azure.AuthMode},
		{"AZURE_AUTHORITY_HOST", &cfg.Azure.AuthorityHost},
		{"AZURE_GRAPH_ENDPOINT", &cfg.Azure.GraphEndpoint},
		{"LISTEN_ADDRESS", &cfg.Exporter.ListenAddress},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + s.key); ok {
			*s.dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT has invalid value %q: %w", EnvPrefix, v, err)
		}
		cfg.Exporter.Port = port
	}

	if v, ok := os.LookupEnv(EnvPrefix + "REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT has invalid duration %q: %w", EnvPrefix, v, err)
		}
		cfg.Exporter.RequestTimeout = d
	}
	return nil
}
