// Package internaldefs holds the shared metric name table used by the
// prometheus and otel exporters.
package internaldefs
