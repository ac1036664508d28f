// Package facility is the authoritative record of doors, users and the
// access activity log.
//
// Every other component reads and writes facility state through the
// Repository interface. The SQLite implementation is the production store;
// DashboardStats are derived from it on demand and never persisted.
//
// Identifiers are int64 rowids in SQLite and decimal strings everywhere
// else, matching the JSON wire format.
package facility
