// Package config loads, normalizes, and validates the veracity
// configuration file.
package config
