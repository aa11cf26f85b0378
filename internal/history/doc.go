// Package history persists pipeline runs and their top-ranked deviations
// to a local SQLite database so past analyses stay queryable through the
// API after the process restarts.
package history
