// settle.go - Proof-gated atomic settlement of a matched trade.

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"darkpool/internal/ledger"
	"darkpool/internal/signals"
)

// SettleParams carries the inputs of one settlement: the match identity, the
// two counterparties, the traded and payment assets, the agreed quantity and
// price, and the serialized proof with its public signals.
type SettleParams struct {
	MatchID       common.Hash
	Buyer         common.Address
	Seller        common.Address
	Asset         common.Address
	PaymentAsset  common.Address
	Quantity      *big.Int
	Price         *big.Int
	Proof         []byte
	PublicSignals []byte
}

// SettleTrade executes a matched trade as one atomic transaction.
//
// Neither counterparty authenticates here. The proof attests that both sides
// committed to the match, the funds being moved entered escrow under
// authenticated deposits and locks, and the nullifier blocks replay, so any
// relayer holding a valid proof may submit the settlement.
//
// Steps:
//  1. Decode the public signals; the payload must carry the settlement layout
//  2. When whitelist enforcement is on, the proof's root must match the
//     registry's current root
//  3. Reject match identifiers that already settled
//  4. Reject reused nullifiers
//  5. Verify the proof against the stored verification key
//  6. Seller delivers the asset to the buyer from locked escrow
//  7. Buyer delivers the payment to the seller from locked escrow
//  8. Consume the nullifier and append the settlement record
//
// Any failure leaves the ledger untouched.
func (e *Engine) SettleTrade(ctx context.Context, p SettleParams) (ledger.SettlementRecord, error) {
	if err := ledger.ValidateAmount(p.Quantity); err != nil {
		return ledger.SettlementRecord{}, fmt.Errorf("quantity: %w", err)
	}
	if err := ledger.ValidateAmount(p.Price); err != nil {
		return ledger.SettlementRecord{}, fmt.Errorf("price: %w", err)
	}

	// Step 1: Decode the signal payload.
	sigs, err := signals.ParseSettlement(p.PublicSignals)
	if err != nil {
		return ledger.SettlementRecord{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	// Step 2: Whitelist root check.
	if e.WhitelistEnforced() {
		root, err := e.registry.WhitelistRoot(ctx)
		if err != nil {
			return ledger.SettlementRecord{}, fmt.Errorf("fetch whitelist root: %w", err)
		}
		if sigs.WhitelistRoot() != root {
			return ledger.SettlementRecord{}, ErrWhitelistRootMismatch
		}
	}

	nullifier := sigs.Nullifier()
	vk := e.verificationKey()

	var rec ledger.SettlementRecord
	err = e.ledger.Update(func(tx *ledger.Txn) error {
		// Step 3: One record per match identifier.
		if tx.HasSettlement(p.MatchID) {
			return ledger.ErrAlreadySettled
		}

		// Step 4: Reject reused nullifiers.
		if tx.IsNullifierUsed(nullifier) {
			return ledger.ErrNullifierUsed
		}

		// Step 5: Verify the proof.
		ok, err := e.verifier.Verify(vk, p.Proof, p.PublicSignals)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		if !ok {
			return ErrInvalidProof
		}

		// Step 6: Seller delivers the asset.
		if err := tx.TransferFromEscrow(p.Seller, p.Buyer, p.Asset, p.Quantity); err != nil {
			return err
		}

		// Step 7: Buyer delivers the payment.
		if err := tx.TransferFromEscrow(p.Buyer, p.Seller, p.PaymentAsset, p.Price); err != nil {
			return err
		}

		// Step 8: Consume the nullifier and record the settlement.
		if err := tx.MarkNullifierUsed(nullifier); err != nil {
			return err
		}
		rec = ledger.SettlementRecord{
			MatchID:   p.MatchID,
			Buyer:     p.Buyer,
			Seller:    p.Seller,
			Asset:     p.Asset,
			Quantity:  new(big.Int).Set(p.Quantity),
			Price:     new(big.Int).Set(p.Price),
			Timestamp: e.now(),
			Nullifier: nullifier,
		}
		return tx.AppendSettlement(rec)
	})
	if err != nil {
		return ledger.SettlementRecord{}, err
	}
	return rec, nil
}
