// Package database manages the optional PostgreSQL pool backing the
// connection status journal.
//
// The journal is append-only: one row per status transition, keyed by a
// per-process session id so restarts can be told apart.
package database
