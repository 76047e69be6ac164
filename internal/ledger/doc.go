// Package ledger implements the escrow ledger backing confidential trade settlement.
//
// Overview:
//   - Tracks escrow and locked balances per (participant, asset) account key
//   - Records consumed nullifiers in an append-only, insertion-ordered set
//   - Stores immutable settlement records, indexed by match identifier
//   - All mutation happens inside a single-writer transaction (Update); a
//     failed transaction leaves no observable change
//
// Security Model:
//   - Balances never go negative; locked never exceeds escrow for any key
//   - Nullifiers are never removed once marked; replay of a settlement proof
//     is therefore detectable forever
//   - Settlement records are append-only and keyed by match identifier
//
// Usage:
//   - Use New to create an empty ledger, or NewFromSnapshot to restore one
//   - Mutate through Update; read through EscrowBalance, IsNullifierUsed,
//     Settlements, and friends
//   - Persist with Snapshot/SaveToFile or a store.Store implementation
package ledger
