// Package evidence defines the uniform adapter contract every detection
// provider is wrapped behind, the immutable records their invocations
// produce, and the fan-out collector that runs expensive adapters
// concurrently without failing fast.
package evidence
