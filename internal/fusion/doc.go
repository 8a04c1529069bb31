// Package fusion turns heterogeneous, sometimes-missing evidence into a
// single authenticity score, verdict, and confidence.
//
// Everything in this package is a pure function of the evidence record set
// and the tuning parameters: the same inputs always produce the same
// result. That property is what makes verdicts auditable and lets an admin
// override reference exactly what the engine saw.
package fusion
