// Package audit implements the best-effort streaming mirror of the durable
// audit ledger. Nothing in this package participates in the mandatory write
// path; a dropped mirror event never fails an operation.
package audit
