// Package server exposes the hub over HTTP: a WebSocket endpoint for
// observers and a plain GET endpoint for device liveness reports.
//
// Observers connect to GET /ws/{login}/{password}. After a credential check
// the connection is upgraded and attached to the hub, which delivers the
// INIT snapshot as the first message. Every subsequent hub announcement is
// pushed through a per-session buffered outbound queue; a session that
// cannot keep up is dropped rather than allowed to stall the hub.
//
// Devices report via GET /device/alive/{key}/{status}. The status token is
// validated at this boundary (OFFLINE and unknown tokens are rejected with
// 400); an unknown device key is a silent 200 by design of the protocol.
//
// Each WebSocket session is pinged every PingInterval; a session that does
// not answer within PingTimeout is closed. This transport keepalive is
// independent of the device liveness tracking inside the hub.
package server
