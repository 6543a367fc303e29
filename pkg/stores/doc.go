// Package stores persists workflow run history in SQLite.
//
// Every finished run is saved as one row in runs, one row per node in skill_results
// and one row per audit trail event in audit_events, written in a single transaction.
// The schema is managed with golang-migrate from migrations embedded in the binary.
// Deleting a run cascades to its node results and audit events.
package stores
