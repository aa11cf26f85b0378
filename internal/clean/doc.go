// Package clean filters and normalizes raw incident rows into typed,
// complete records.
//
// A raw row survives cleaning only if its date parses as a calendar date
// and every governed categorical field is present, not a known sentinel,
// and (when the field has a closed domain) a member of that domain.
// Rows that fail any check are dropped silently; the drop counts are
// reported alongside the surviving records so data quality stays
// observable without turning bad rows into errors.
package clean
