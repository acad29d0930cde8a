// Package config loads the TOML configuration file, applies repository
// defaults and environment overrides, and validates the result. Runtime
// behavior settings live in the store's settings table; this package only
// covers what the process needs before the store is open.
package config
