// Package api serves the read-only REST surface over the latest pipeline
// results and the persisted run history.
//
// All endpoints live under /api/v1/ and return JSON. The API never
// triggers analysis itself; it only reads what the refresh loop has
// already produced.
package api
