// Package config loads the host configuration from the `server:` section of
// tidewatch.yaml.
//
// Config fields:
//   - HTTPPort      : port for the REST API, WebSocket hub and /metrics (default 3000)
//   - LogLevel      : debug|info|warn|error (default info)
//   - SelfPrefix    : path prefix of the local vessel (default "self.")
//   - Auth          : API key protection of mutating routes
//   - Store         : zone/unit-default persistence backend (file|sqlite)
//   - Outbound      : bus endpoint edits are published to; empty disables publishing
//   - Alerts        : zone alarm cooldown and webhook targets
//   - Stats.Enabled : throughput counters and their collector
//   - Units         : per-group display measure overrides
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change.
package config
