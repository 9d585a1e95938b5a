// Package config loads atrium's configuration.
//
// Values come from three layers, later ones winning: built-in defaults, the YAML file named
// by ATRIUM_CONFIG_FILE, and ATRIUM_* environment variables.
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	database:
//	  driver: postgres          # postgres or sqlite3
//	  url: postgres://localhost/atrium?sslmode=disable
//	redis:
//	  url: redis://localhost:6379/0   # optional
//	invites:
//	  validity: 168h
//	  sweep_schedule: "@every 5m"
//	cache:
//	  backend: memory           # memory or redis
//	  ttl: 5m
//	oidc:
//	  issuer_url: https://accounts.example.com
//	  client_id: atrium
//	observability:
//	  log_level: info
//	  log_format: json
//
// The matching environment variables are ATRIUM_PORT, ATRIUM_DB_DRIVER, ATRIUM_DB_URL,
// ATRIUM_REDIS_URL, ATRIUM_INVITE_VALIDITY, ATRIUM_SWEEP_SCHEDULE, ATRIUM_CACHE_BACKEND,
// ATRIUM_CACHE_TTL, ATRIUM_OIDC_ISSUER_URL, ATRIUM_OIDC_CLIENT_ID, ATRIUM_LOG_LEVEL and so
// on; see applyEnv for the full list.
//
// WatchLogLevel picks up log level edits in the YAML file without a restart.
package config
