// Command xaio drives the staged article pipeline: intake, capture, reduce,
// meta, claims, merge, and publish, with every outcome recorded in the state
// ledger. Run `xaio sweep` from cron or a systemd timer; concurrent sweeps
// coordinate through the ledger's lease table.
package main
