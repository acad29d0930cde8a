// Package store persists the media library, embedded subtitle inventory,
// translation request queue, request logs, settings, and audit logs in
// SQLite. It owns the schema and the low-level row contracts; lifecycle
// policy lives in the services built on top.
package store
