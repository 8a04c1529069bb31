// Package providers implements the evidence adapters: thin clients over
// the external detection and verification services, plus the local
// perceptual-hash catalog lookup.
//
// Every adapter satisfies evidence.Adapter and keeps the same failure
// discipline: transient upstream trouble is retried within the adapter's
// deadline, malformed responses are reported as failures, and nothing in
// this package panics on bad input.
package providers
