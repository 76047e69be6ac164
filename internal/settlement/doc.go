// Package settlement orchestrates escrow operations and proof-gated trade
// settlement over the escrow ledger.
//
// Overview:
//   - Balance operations (Deposit, Withdraw, LockEscrow, UnlockEscrow)
//     authenticate the acting participant and run as single ledger
//     transactions, token movement included
//   - SettleTrade consumes a zero-knowledge settlement proof: it decodes the
//     public signals, rejects reused nullifiers, verifies the proof, swaps
//     the two escrow legs atomically, and appends a settlement record
//   - Collaborators (token transfer, proof verification, whitelist registry,
//     authentication) are injected as interfaces; the engine trusts the
//     verifier's boolean verdict
//
// Security Model:
//   - Every mutating operation either fully applies or leaves no trace
//   - SettleTrade deliberately authenticates neither counterparty: the proof
//     attests that both sides committed to the match, the funds it moves
//     were escrowed and locked under authenticated operations, and the
//     nullifier blocks replay
//   - The whitelist root check is wired but ships disabled until the
//     registry's root computation matches the circuit's
//
// Usage:
//   - Build a Config and Collaborators, then New(ledger, cfg, collab)
//   - Drive the engine from an API layer or directly from Go
package settlement
