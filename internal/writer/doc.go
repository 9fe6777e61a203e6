// Package writer persists connection status transitions.
//
// The journal consumes status records from an inbox and appends them to
// the connection_status table in batches. Rows are never updated.
package writer
