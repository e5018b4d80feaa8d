// Package config handles configuration loading for coven-reactions.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension),
// with environment variable expansion, per-field environment overrides and
// validation. Missing keys keep the values from Default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${COVEN_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
// After the file is parsed, COVEN_REACTIONS_* variables override single
// fields, for example:
//
//	COVEN_REACTIONS_SERVER_HTTP_ADDR=:9090
//	COVEN_REACTIONS_DB_PATH=/var/lib/reactions.db
//	COVEN_REACTIONS_REACTIONS_ALLOW_MULTIPLE=true
//	COVEN_REACTIONS_REACTIONS_TYPES=like,love,haha
//	COVEN_REACTIONS_AUTH_JWT_SECRET=...
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	database:
//	  busy_timeout: "5s"
//	idempotency:
//	  ttl: "5m"
//
// # Reactions Section
//
//	reactions:
//	  allow_multiple: false     # single mode: one reaction per user per entity
//	  types: [like, love, haha] # empty allows any kind
//	  case_insensitive: true    # default true
//	  store_name: Reaction      # table "reactions"
//
// The mode is fixed when the database is first opened; reopening it in the
// other mode fails with store.ErrModeMismatch.
package config
