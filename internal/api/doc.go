// Package api defines the JSON types shared between the daemon's HTTP
// surface and the CLI client, plus the service layer that maps them onto
// the store.
package api
