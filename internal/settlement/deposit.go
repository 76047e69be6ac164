// deposit.go - Escrow funding.

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"darkpool/internal/ledger"
)

// Deposit pulls amount of asset from the participant into custody and credits
// their escrow balance. The token movement and the credit form one atomic
// unit. Returns the new escrow balance.
func (e *Engine) Deposit(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (*big.Int, error) {
	if err := ledger.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := e.authenticate(participant, AuthScope(OpDeposit, participant, asset, amount), credential); err != nil {
		return nil, err
	}
	if err := e.checkEligibility(ctx, participant, asset); err != nil {
		return nil, err
	}

	key := ledger.AccountKey{Participant: participant, Asset: asset}
	var newBalance *big.Int
	err := e.ledger.Update(func(tx *ledger.Txn) error {
		// Step 1: Pull the tokens. A collaborator failure aborts before any
		// ledger state is touched.
		if err := e.token.TransferIn(ctx, participant, asset, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		// Step 2: Credit escrow.
		newBalance = tx.AddEscrow(key, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newBalance, nil
}

// checkEligibility consults the registry when whitelist enforcement is on.
func (e *Engine) checkEligibility(ctx context.Context, participant, asset common.Address) error {
	if !e.WhitelistEnforced() {
		return nil
	}
	ok, err := e.registry.ParticipantEligible(ctx, participant)
	if err != nil {
		return fmt.Errorf("check participant eligibility: %w", err)
	}
	if !ok {
		return ErrParticipantNotEligible
	}
	ok, err = e.registry.AssetEligible(ctx, asset)
	if err != nil {
		return fmt.Errorf("check asset eligibility: %w", err)
	}
	if !ok {
		return ErrAssetNotEligible
	}
	return nil
}
