// Package hub implements the status-broadcast hub: the single owner of the
// device registry, the liveness tracker and the observer set.
//
// The hub is a serialized event processor. Every external operation is
// posted as one command into a single queue and processed to completion by
// one goroutine, so no two commands ever interleave their effects on shared
// state. The periodic liveness sweep runs as just another command on the
// same queue. Broadcasts triggered by a command are fully issued before the
// next command starts, giving every observer a consistent view of
// state-change order.
//
// Delivery to observers is fire-and-forget: a slow or dead observer never
// stalls the command loop.
package hub
