// Package ledger is the single source of truth for pipeline progress. It
// persists work items and per-(item, stage) records in SQLite and funnels all
// mutation through a versioned compare-and-set Transition. Nothing is ever
// hard-deleted; every transition is mirrored into an append-only history
// table.
package ledger
