// snapshot.go - Point-in-time serialization of the ledger state.
//
// A Snapshot is the JSON-friendly form of the full ledger: balance entries
// are sorted for stable output, settlement records keep their append order.
// SaveToFile and LoadFromFile persist a ledger as a single JSON file; the
// store package offers the same snapshot over other backends.

package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceEntry is one (participant, asset, amount) row of a snapshot.
type BalanceEntry struct {
	Participant common.Address `json:"participant"`
	Asset       common.Address `json:"asset"`
	Amount      *big.Int       `json:"amount"`
}

// Snapshot is a serializable copy of the complete ledger state.
type Snapshot struct {
	Escrow      []BalanceEntry     `json:"escrow"`
	Locked      []BalanceEntry     `json:"locked"`
	Nullifiers  []common.Hash      `json:"nullifiers"`
	Settlements []SettlementRecord `json:"settlements"`
}

// Snapshot returns a copy of the current ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &Snapshot{
		Escrow:      balanceEntries(l.escrow),
		Locked:      balanceEntries(l.locked),
		Nullifiers:  make([]common.Hash, len(l.nullifierList)),
		Settlements: make([]SettlementRecord, len(l.settlements)),
	}
	copy(snap.Nullifiers, l.nullifierList)
	for i, rec := range l.settlements {
		snap.Settlements[i] = rec.clone()
	}
	return snap
}

// NewFromSnapshot rebuilds a ledger from a snapshot, validating the state
// invariants: non-negative amounts, locked not exceeding escrow, and no
// duplicate nullifiers or match identifiers.
func NewFromSnapshot(snap *Snapshot) (*Ledger, error) {
	l := New()
	for _, e := range snap.Escrow {
		if err := ValidateAmount(e.Amount); err != nil {
			return nil, fmt.Errorf("escrow entry %s/%s: %w", e.Participant, e.Asset, err)
		}
		l.escrow[AccountKey{Participant: e.Participant, Asset: e.Asset}] = new(big.Int).Set(e.Amount)
	}
	for _, e := range snap.Locked {
		if err := ValidateAmount(e.Amount); err != nil {
			return nil, fmt.Errorf("locked entry %s/%s: %w", e.Participant, e.Asset, err)
		}
		key := AccountKey{Participant: e.Participant, Asset: e.Asset}
		escrow := l.escrow[key]
		if escrow == nil || escrow.Cmp(e.Amount) < 0 {
			return nil, fmt.Errorf("locked entry %s/%s exceeds escrow", e.Participant, e.Asset)
		}
		l.locked[key] = new(big.Int).Set(e.Amount)
	}
	for _, n := range snap.Nullifiers {
		if _, ok := l.nullifierSet[n]; ok {
			return nil, fmt.Errorf("duplicate nullifier %s", n)
		}
		l.nullifierSet[n] = struct{}{}
		l.nullifierList = append(l.nullifierList, n)
	}
	for _, rec := range snap.Settlements {
		if _, ok := l.matchIndex[rec.MatchID]; ok {
			return nil, fmt.Errorf("duplicate settlement record %s", rec.MatchID)
		}
		if err := ValidateAmount(rec.Quantity); err != nil {
			return nil, fmt.Errorf("settlement %s quantity: %w", rec.MatchID, err)
		}
		if err := ValidateAmount(rec.Price); err != nil {
			return nil, fmt.Errorf("settlement %s price: %w", rec.MatchID, err)
		}
		l.matchIndex[rec.MatchID] = len(l.settlements)
		l.settlements = append(l.settlements, rec.clone())
	}
	return l, nil
}

// SaveToFile saves the ledger snapshot to a JSON file.
// Overwrites the file if it exists.
func (l *Ledger) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(l.Snapshot())
}

// LoadFromFile loads a ledger from a JSON snapshot file.
// Returns an error if the file is invalid or cannot be read.
func LoadFromFile(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}
	return NewFromSnapshot(&snap)
}

// balanceEntries flattens a balance map into sorted entries, skipping zero
// balances.
func balanceEntries(m map[AccountKey]*big.Int) []BalanceEntry {
	entries := make([]BalanceEntry, 0, len(m))
	for key, b := range m {
		if b == nil || b.Sign() == 0 {
			continue
		}
		entries = append(entries, BalanceEntry{
			Participant: key.Participant,
			Asset:       key.Asset,
			Amount:      new(big.Int).Set(b),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		pi, pj := entries[i].Participant, entries[j].Participant
		if pi != pj {
			return pi.Cmp(pj) < 0
		}
		return entries[i].Asset.Cmp(entries[j].Asset) < 0
	})
	return entries
}
