// Package flows extracts engine workflows into dependency-struct functions
// so they can be exercised in isolation without a full engine.
package flows
