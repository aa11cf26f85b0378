// Package source retrieves raw incident rows for the pipeline.
//
// A Source is an opaque record supplier: the pipeline constrains only
// the row shape (a date column plus categorical columns), not the
// retrieval mechanism. Two implementations ship: a local CSV file and
// an HTTP CSV endpoint with optional apikey/bearer/basic auth.
package source
