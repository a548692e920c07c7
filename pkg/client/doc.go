// Package client implements an observer client for the hub.
//
// A Client dials the hub's WebSocket endpoint, mirrors the device roster
// from the INIT snapshot and subsequent announcements, and hands every
// parsed announcement to a callback. When the connection drops the client
// reconnects automatically with exponential backoff and jitter; the roster
// is rebuilt from the fresh INIT on every reconnect.
package client
