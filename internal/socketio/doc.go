// Package socketio encodes and decodes the Engine.IO v4 / Socket.IO v5 text
// framing carried over a WebSocket.
//
// Every WebSocket text frame is one Engine.IO packet: a single type digit
// followed by its payload. MESSAGE packets wrap one Socket.IO packet:
//
//	<type>[<namespace>,][<ack id>][<json data>]
//
// Binary attachments are not supported.
package socketio
