// Package store keeps the newest pipeline report and per-key results in
// memory for the API and WebSocket layers.
//
// Keys that stop appearing in fresh runs (a group-by change, a shrunken
// dataset) are evicted by a background TTL loop rather than lingering
// forever.
package store
