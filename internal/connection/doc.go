// Package connection implements the websocket client and the connection
// pool manager.
//
// The pool owns one slot per configured proxy descriptor (or a single
// direct slot when none are configured). Each slot runs its own state
// machine: Connecting -> Open -> Closed -> backoff -> Connecting, with a
// terminal ShutDown state reachable only through pool shutdown. Slots are
// fully independent: one slot's failure never affects another, and a slot
// retries forever on a capped exponential backoff.
//
// The periodic sweep is diagnostic only. Slots self-heal through their own
// supervisor loops; the sweep logs per-slot health and refreshes gauges.
package connection
