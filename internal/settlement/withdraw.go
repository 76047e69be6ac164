// withdraw.go - Escrow withdrawal.

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"darkpool/internal/ledger"
)

// Withdraw debits the participant's escrow and pays the tokens out of
// custody. Locked funds cannot be withdrawn. The debit and the token movement
// form one atomic unit: if the payout fails, the debit rolls back. Returns
// the new escrow balance.
func (e *Engine) Withdraw(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (*big.Int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := e.authenticate(participant, AuthScope(OpWithdraw, participant, asset, amount), credential); err != nil {
		return nil, err
	}

	key := ledger.AccountKey{Participant: participant, Asset: asset}
	var newBalance *big.Int
	err := e.ledger.Update(func(tx *ledger.Txn) error {
		// Step 1: Only the unlocked portion of escrow may leave.
		if tx.AvailableBalance(key).Cmp(amount) < 0 {
			return ledger.ErrInsufficientBalance
		}
		// Step 2: Debit escrow.
		if err := tx.SubEscrow(key, amount); err != nil {
			return err
		}
		// Step 3: Pay out. A failure here discards the debit.
		if err := e.token.TransferOut(ctx, participant, asset, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		newBalance = tx.EscrowBalance(key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newBalance, nil
}
