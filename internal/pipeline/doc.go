// Package pipeline runs the full analytical chain over one batch of raw
// incident rows: clean, aggregate per grouping key, then fit a trend and
// rank deviations for every key independently.
//
// Keys are processed concurrently — each key's series is an independent
// immutable value, so the per-key fan-out needs no coordination beyond
// collecting results. A fit failure on one key (too few points) is
// recorded on that key's result and never aborts the others.
package pipeline
