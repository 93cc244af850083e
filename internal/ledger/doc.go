// Package ledger keeps a durable record of how each delivery ended.
//
// The stream's fire-and-forget path drops exhausted messages after logging
// them. Attaching Observer to a stream writes every terminal outcome
// (delivered, exhausted, rejected, cancelled, failed) to the deliveries
// table so operators can audit drops later with `courier inspect ledger`.
package ledger
