// Package queue persists analysis jobs, evidence records, fusion results,
// and review tickets in SQLite, and implements the priority claim/ack/nack
// protocol the worker pools drive jobs through.
package queue
