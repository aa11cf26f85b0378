// Package config loads the incidentlens configuration from config.yaml.
//
// Sections:
//   - server   — http_port for the REST API, WebSocket stream and /metrics
//   - dataset  — record source: file or http CSV, date column, auth
//   - analysis — group-by fields, time unit, lagging window, field specs
//   - refresh  — how often the serve command re-runs the pipeline
//   - history  — sqlite run-history path and retention
//   - alerts   — threshold rules and webhook delivery targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Secrets (API keys, webhook URLs) are never stored in the file; the
// config names environment variables and resolves them at use time.
package config
