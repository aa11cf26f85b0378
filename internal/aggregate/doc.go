// Package aggregate buckets cleaned records by grouping-key tuple and
// time unit, producing one chronologically ordered count series per
// tuple with running cumulative totals.
//
// Buckets with zero records are never synthesized: a series only holds
// buckets that saw at least one record, so consumers must tolerate
// non-uniform spacing between entries.
package aggregate
