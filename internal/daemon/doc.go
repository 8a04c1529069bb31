// Package daemon wires the analysis system together: store, adapters,
// pipeline, worker pools, and the HTTP API, under a single-instance file
// lock.
package daemon
