// Package history implements the optional Postgres archive of server
// point updates.
//
// The archive is best-effort: rows are batched up to BatchSize or
// FlushInterval and inserted in one round trip. Insert failures are
// logged and the batch is dropped; the persisted state store remains the
// source of truth for current totals.
package history
