// journal.go - Immutable settlement records and their lookup index.

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementRecord is the immutable outcome of one settled trade. Records are
// appended in settlement order and never modified.
type SettlementRecord struct {
	MatchID   common.Hash    `json:"match_id"`
	Buyer     common.Address `json:"buyer"`
	Seller    common.Address `json:"seller"`
	Asset     common.Address `json:"asset"`
	Quantity  *big.Int       `json:"quantity"`
	Price     *big.Int       `json:"price"`
	Timestamp uint64         `json:"timestamp"`
	Nullifier common.Hash    `json:"nullifier"`
}

// clone deep-copies the record so callers cannot alias the journal's big.Int
// fields.
func (r SettlementRecord) clone() SettlementRecord {
	out := r
	out.Quantity = copyBalance(r.Quantity)
	out.Price = copyBalance(r.Price)
	return out
}

// Settlements returns all settlement records in append order.
func (l *Ledger) Settlements() []SettlementRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SettlementRecord, len(l.settlements))
	for i, rec := range l.settlements {
		out[i] = rec.clone()
	}
	return out
}

// Settlement returns the settlement record for matchID, or ErrMatchNotFound.
func (l *Ledger) Settlement(matchID common.Hash) (SettlementRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.matchIndex[matchID]
	if !ok {
		return SettlementRecord{}, ErrMatchNotFound
	}
	return l.settlements[i].clone(), nil
}

// HasSettlement reports whether a record exists for matchID.
func (l *Ledger) HasSettlement(matchID common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.matchIndex[matchID]
	return ok
}
