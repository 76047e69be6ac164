// escrow.go - Locking and unlocking escrow against pending orders.

package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"darkpool/internal/ledger"
)

// LockEscrow reserves amount of the participant's escrowed asset against a
// pending order. Only unlocked escrow can be locked.
func (e *Engine) LockEscrow(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) error {
	if err := ledger.ValidateAmount(amount); err != nil {
		return err
	}
	if err := e.authenticate(participant, AuthScope(OpLockEscrow, participant, asset, amount), credential); err != nil {
		return err
	}

	key := ledger.AccountKey{Participant: participant, Asset: asset}
	return e.ledger.Update(func(tx *ledger.Txn) error {
		if tx.AvailableBalance(key).Cmp(amount) < 0 {
			return ledger.ErrInsufficientEscrow
		}
		tx.AddLocked(key, amount)
		return nil
	})
}

// UnlockEscrow releases amount of the participant's locked asset, for example
// when an order is cancelled.
func (e *Engine) UnlockEscrow(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) error {
	if err := ledger.ValidateAmount(amount); err != nil {
		return err
	}
	if err := e.authenticate(participant, AuthScope(OpUnlockEscrow, participant, asset, amount), credential); err != nil {
		return err
	}

	key := ledger.AccountKey{Participant: participant, Asset: asset}
	return e.ledger.Update(func(tx *ledger.Txn) error {
		return tx.SubLocked(key, amount)
	})
}
