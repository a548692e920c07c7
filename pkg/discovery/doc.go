// Package discovery advertises a running hub on the local network via mDNS.
//
// The hub is published as a "_dyscypliner._tcp" service whose TXT records
// carry the protocol version and the current device count. Advertising is
// strictly optional: a hub whose advertisement fails keeps serving, and the
// caller decides whether the error is worth reporting.
package discovery
