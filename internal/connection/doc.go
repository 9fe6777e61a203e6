// Package connection implements the realtime connection to the StaySpot
// backend.
//
// The Manager:
//   - Owns a single Socket.IO transport at a time, dialed per attempt
//   - Moves through disconnected, connecting, connected, reconnecting and failed
//   - Retries recoverable drops with exponential backoff
//   - Pings the server while connected and records pongs as last activity
//   - Keeps durable event handlers and replays them onto every new transport
//   - Publishes status snapshots to subscribers
//
// The WebSocket transport speaks Engine.IO v4 / Socket.IO v5 text framing.
package connection
