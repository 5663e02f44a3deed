// Package logging provides structured logging with per-module log level configuration.
//
// Records go to stdout when a terminal, pipe or file is attached, and to the
// systemd journal when journald is reachable. Both are used when both are
// available.
//
// Initialize once at startup, then take a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"relay": "debug",
//			"api":   "warn",
//		},
//	})
//
//	logger := logging.GetLogger("relay").With("session_id", id)
//	logger.Info("Relay started")
//
// Loggers obtained before Initialize are updated in place. SetLevels changes
// levels at runtime, for example after the config file was edited.
//
// Worker output relayed by the supervisor is logged under the "relay" module
// with a session_id attribute, so journald can filter a single session:
//
//	journalctl -t relaynode MODULE=relay SESSION_ID=<id>
package logging
