// Package gateway is the application-facing channel on top of the
// connection manager: guarded emits, room membership and the StaySpot
// domain helpers (properties, tasks, maintenance, team chat,
// notifications).
//
// Joined rooms are remembered and joined again every time the connection
// comes back.
package gateway
