// Package logging centralizes slog construction, shared attribute helpers,
// and the in-memory stream hub that feeds the dashboard log endpoints.
package logging
