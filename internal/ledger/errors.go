// errors.go - Sentinel errors and amount validation for the escrow ledger.

package ledger

import (
	"errors"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// available (escrow minus locked) balance.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrInsufficientEscrow is returned when an operation needs more escrow
	// than the account holds.
	ErrInsufficientEscrow = errors.New("insufficient escrow balance")

	// ErrInsufficientLockedFunds is returned when an operation needs more
	// locked funds than the account holds.
	ErrInsufficientLockedFunds = errors.New("insufficient locked funds")

	// ErrNullifierUsed is returned when a settlement reuses a nullifier.
	ErrNullifierUsed = errors.New("nullifier already used")

	// ErrMatchNotFound is returned when no settlement record exists for a
	// match identifier.
	ErrMatchNotFound = errors.New("settlement match not found")

	// ErrAlreadySettled is returned when a settlement record already exists
	// for a match identifier.
	ErrAlreadySettled = errors.New("match already settled")

	// ErrInvalidAmount is returned for nil, negative, or out-of-range amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// maxAmountBits bounds amounts to the non-negative half of a signed 128-bit
// integer, the value domain of the settlement records.
const maxAmountBits = 127

// ValidateAmount rejects nil, negative, and >127-bit amounts.
func ValidateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > maxAmountBits {
		return ErrInvalidAmount
	}
	return nil
}
