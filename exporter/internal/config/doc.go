// Package config loads and watches the exporter configuration.
//
// Top-level types:
//   - Config{Azure, Exporter, Log}: full tree parsed from YAML
//   - AzureConfig: tenant_id, client_id, client_secret, auth_mode
//     (oauth2|azidentity), authority_host, graph_endpoint
//   - ExporterConfig: listen_address, port, request_timeout
//   - LogConfig: level (debug|info|warn|error), format (json|text)
//
// Load(path) applies defaults, then the YAML file (a missing file is allowed),
// then AASM_* environment overrides, then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. Only the log settings are applied
// live by the exporter; everything else needs a restart.
package config
