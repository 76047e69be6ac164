// txn.go - Transaction overlay for atomic multi-step ledger mutations.
//
// A Txn buffers every write in overlay maps and staged appends. Reads go
// through the overlay first and fall back to the base ledger, so a
// transaction observes its own writes. commit folds the overlay into the
// base state; an abandoned Txn leaves the ledger untouched.

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Txn is a pending mutation of the ledger. It is created by Update and must
// not be retained after the Update callback returns.
type Txn struct {
	l *Ledger

	escrow map[AccountKey]*big.Int
	locked map[AccountKey]*big.Int

	nullifiers  []common.Hash
	settlements []SettlementRecord
}

func newTxn(l *Ledger) *Txn {
	return &Txn{
		l:      l,
		escrow: make(map[AccountKey]*big.Int),
		locked: make(map[AccountKey]*big.Int),
	}
}

// EscrowBalance returns the escrow balance for key as seen by this
// transaction, including its own uncommitted writes.
func (t *Txn) EscrowBalance(key AccountKey) *big.Int {
	if b, ok := t.escrow[key]; ok {
		return new(big.Int).Set(b)
	}
	return copyBalance(t.l.escrow[key])
}

// LockedBalance returns the locked balance for key as seen by this
// transaction.
func (t *Txn) LockedBalance(key AccountKey) *big.Int {
	if b, ok := t.locked[key]; ok {
		return new(big.Int).Set(b)
	}
	return copyBalance(t.l.locked[key])
}

// AvailableBalance returns escrow minus locked for key as seen by this
// transaction.
func (t *Txn) AvailableBalance(key AccountKey) *big.Int {
	return new(big.Int).Sub(t.EscrowBalance(key), t.LockedBalance(key))
}

// AddEscrow credits amount to the escrow balance of key and returns the new
// balance. The amount must already be validated.
func (t *Txn) AddEscrow(key AccountKey, amount *big.Int) *big.Int {
	next := t.EscrowBalance(key)
	next.Add(next, amount)
	t.escrow[key] = next
	return new(big.Int).Set(next)
}

// SubEscrow debits amount from the escrow balance of key. Returns
// ErrInsufficientEscrow if the balance would go negative.
func (t *Txn) SubEscrow(key AccountKey, amount *big.Int) error {
	current := t.EscrowBalance(key)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientEscrow
	}
	t.escrow[key] = current.Sub(current, amount)
	return nil
}

// AddLocked increases the locked balance of key by amount.
func (t *Txn) AddLocked(key AccountKey, amount *big.Int) {
	next := t.LockedBalance(key)
	next.Add(next, amount)
	t.locked[key] = next
}

// SubLocked decreases the locked balance of key by amount. Returns
// ErrInsufficientLockedFunds if the balance would go negative.
func (t *Txn) SubLocked(key AccountKey, amount *big.Int) error {
	current := t.LockedBalance(key)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientLockedFunds
	}
	t.locked[key] = current.Sub(current, amount)
	return nil
}

// TransferFromEscrow moves amount of asset from one participant's escrow to
// another's as a single unit:
//
//  1. Subtract from the sender's locked balance (funds must be locked
//     against a matched order before they can settle)
//  2. Subtract from the sender's escrow balance
//  3. Credit the receiver's escrow balance
//
// Any failure leaves the transaction's view unchanged for the caller to
// abort; partial effects never reach the base ledger.
func (t *Txn) TransferFromEscrow(from, to, asset common.Address, amount *big.Int) error {
	fromKey := AccountKey{Participant: from, Asset: asset}
	toKey := AccountKey{Participant: to, Asset: asset}

	if err := t.SubLocked(fromKey, amount); err != nil {
		return err
	}
	if err := t.SubEscrow(fromKey, amount); err != nil {
		return err
	}
	t.AddEscrow(toKey, amount)
	return nil
}

// IsNullifierUsed reports whether the nullifier is consumed in the base
// ledger or staged in this transaction.
func (t *Txn) IsNullifierUsed(n common.Hash) bool {
	if _, ok := t.l.nullifierSet[n]; ok {
		return true
	}
	for _, staged := range t.nullifiers {
		if staged == n {
			return true
		}
	}
	return false
}

// MarkNullifierUsed stages the nullifier for append. Returns ErrNullifierUsed
// if it is already consumed or staged.
func (t *Txn) MarkNullifierUsed(n common.Hash) error {
	if t.IsNullifierUsed(n) {
		return ErrNullifierUsed
	}
	t.nullifiers = append(t.nullifiers, n)
	return nil
}

// HasSettlement reports whether a settlement record exists for matchID in the
// base ledger or staged in this transaction.
func (t *Txn) HasSettlement(matchID common.Hash) bool {
	if _, ok := t.l.matchIndex[matchID]; ok {
		return true
	}
	for _, staged := range t.settlements {
		if staged.MatchID == matchID {
			return true
		}
	}
	return false
}

// AppendSettlement stages a settlement record for append. Returns
// ErrAlreadySettled if a record with the same match identifier exists.
func (t *Txn) AppendSettlement(rec SettlementRecord) error {
	if t.HasSettlement(rec.MatchID) {
		return ErrAlreadySettled
	}
	t.settlements = append(t.settlements, rec.clone())
	return nil
}

// commit folds the overlay into the base ledger. Called by Update with the
// ledger write lock held.
func (t *Txn) commit() {
	for key, b := range t.escrow {
		t.l.escrow[key] = b
	}
	for key, b := range t.locked {
		t.l.locked[key] = b
	}
	for _, n := range t.nullifiers {
		t.l.nullifierSet[n] = struct{}{}
		t.l.nullifierList = append(t.l.nullifierList, n)
	}
	for _, rec := range t.settlements {
		t.l.matchIndex[rec.MatchID] = len(t.l.settlements)
		t.l.settlements = append(t.l.settlements, rec)
	}
}
