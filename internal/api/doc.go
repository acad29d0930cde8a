// Package api defines the transport types shared by the daemon's HTTP
// server and the CLI client, plus the client itself.
package api
