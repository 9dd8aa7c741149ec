// Package service orchestrates one business day of evidence
// reconciliation: registry build, staged-batch recovery, the two
// matchers, conflict allocation, and the merge into the durable
// store.
//
// It is the only write entry point; transports and schedulers wrap
// it without duplicating any sequencing logic.
package service
