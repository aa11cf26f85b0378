// Package alerts evaluates threshold rules against every fresh pipeline
// report and delivers webhook notifications when a rule fires.
//
// Conditions are simple "field op value" expressions over report-level
// figures (max relative deviation, dropped percentage, fit failures,
// row counts). Per-rule cooldowns keep a noisy dataset from re-firing
// the same alert on every refresh.
package alerts
