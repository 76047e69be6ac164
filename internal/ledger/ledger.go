// ledger.go - Single-writer escrow ledger: balances, nullifiers, and settlement records.
//
// The Ledger owns all settlement state. Mutation goes through Update, which
// runs the supplied function against a transaction overlay and folds the
// overlay into the base state only when the function returns nil. Reads take
// a shared lock and return copies.

package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AccountKey identifies one escrow account: a participant's holdings of a
// single asset.
type AccountKey struct {
	Participant common.Address `json:"participant"`
	Asset       common.Address `json:"asset"`
}

// Ledger is the canonical state of the settlement system: escrow and locked
// balances per account, the set of consumed nullifiers, and the settlement
// journal. All fields are guarded by mu; mutation is serialized through
// Update.
type Ledger struct {
	mu sync.RWMutex

	escrow map[AccountKey]*big.Int
	locked map[AccountKey]*big.Int

	nullifierSet  map[common.Hash]struct{}
	nullifierList []common.Hash

	settlements []SettlementRecord
	matchIndex  map[common.Hash]int
}

// New creates a new, empty ledger.
func New() *Ledger {
	return &Ledger{
		escrow:        make(map[AccountKey]*big.Int),
		locked:        make(map[AccountKey]*big.Int),
		nullifierSet:  make(map[common.Hash]struct{}),
		nullifierList: make([]common.Hash, 0),
		settlements:   make([]SettlementRecord, 0),
		matchIndex:    make(map[common.Hash]int),
	}
}

// Update runs fn against a transaction overlay and commits the overlay if fn
// returns nil. If fn returns an error, the overlay is discarded and the
// ledger is unchanged. Only one Update runs at a time.
func (l *Ledger) Update(fn func(*Txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn := newTxn(l)
	if err := fn(txn); err != nil {
		return err
	}
	txn.commit()
	return nil
}

// EscrowBalance returns the escrow balance for (participant, asset).
// Unknown accounts read as zero.
func (l *Ledger) EscrowBalance(key AccountKey) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyBalance(l.escrow[key])
}

// LockedBalance returns the locked balance for (participant, asset).
// Unknown accounts read as zero.
func (l *Ledger) LockedBalance(key AccountKey) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyBalance(l.locked[key])
}

// AvailableBalance returns escrow minus locked for (participant, asset).
func (l *Ledger) AvailableBalance(key AccountKey) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	avail := copyBalance(l.escrow[key])
	if lk := l.locked[key]; lk != nil {
		avail.Sub(avail, lk)
	}
	return avail
}

// IsNullifierUsed returns true if the nullifier has been consumed.
func (l *Ledger) IsNullifierUsed(n common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.nullifierSet[n]
	return ok
}

// Nullifiers returns all consumed nullifiers in insertion order.
func (l *Ledger) Nullifiers() []common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Hash, len(l.nullifierList))
	copy(out, l.nullifierList)
	return out
}

// copyBalance returns a copy of b, treating nil as zero.
func copyBalance(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b)
}
