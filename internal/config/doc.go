// Package config handles loading and parsing medaka configuration files.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/medaka/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing/empty, use defaults
//
// A path ending in .yaml or .yml is decoded as YAML with the same keys.
//
// # Format
//
// Example config.toml:
//
//	[account]
//	username = "patient"
//	password = "..."
//	country = "de"
//	language = "en"
//
//	[storage]
//	data_dir = "~/.local/share/medaka"
//
//	[schedule]
//	attempts = 4
//	backoff = "30s"
//	error_delay = "60s"
//	target_offset = "5m30s"
//	min_delay = "30s"
//
//	[wearable]
//	broker = "tcp://127.0.0.1:1883"
//
//	[[wearable.nodes]]
//	id = "watch"
//	nearby = true
//
//	[server]
//	api_bind = "127.0.0.1:7489"
//	log_level = "info"
//
// Durations use time.ParseDuration syntax and must be positive.
//
// # Data Directory
//
// All persisted state lives under storage.data_dir: data.json (raw snapshot
// cache), token (bearer token and expiry), history.db (reading history) and
// log.txt (activity log).
//
// # Account
//
// The account is valid only when username, password, country and language
// are all non-empty. The fetcher refuses to run otherwise.
package config
