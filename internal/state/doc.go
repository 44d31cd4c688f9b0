// Package state implements the persisted state store.
//
// The store is a single flat JSON document shared by every connection and
// the reward estimator. Writes are read-modify-write merges coalesced
// behind a short flush window, so bursts of server messages produce one
// disk write instead of many. Store I/O failures are logged and never
// escalated; a missing or unreadable document is treated as empty.
package state
