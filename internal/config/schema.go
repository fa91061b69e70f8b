package config

// schemaJSON is the JSON Schema igord validates its configuration file
// against before use, in the same fail-fast style as the teacher's
// internal/config/validate.go.
const schemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"listen_address": {"type": "string"},
		"session_root": {"type": "string"},
		"hook_dir": {"type": "string"},
		"watchdog_interval_seconds": {"type": "integer", "minimum": 1},
		"poll_interval_seconds": {"type": "integer", "minimum": 1},
		"cleanup_age_seconds": {"type": "integer", "minimum": 0},
		"max_cleaned_jobs": {"type": "integer", "minimum": 0},
		"events": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"driver": {"type": "string", "enum": ["none", "nats", "tcp"]},
				"nats_url": {"type": "string"},
				"tcp_address": {"type": "string"}
			}
		},
		"log_level": {"type": "string", "enum": ["debug", "info", "warn", "error"]}
	},
	"required": ["session_root", "hook_dir"]
}`
