// Package otel exports engine counters through an OpenTelemetry meter
// using observable instruments, so collection happens on the reader's
// schedule rather than per operation.
package otel
