// scope.go - Canonical byte strings participants sign to authorize operations.

package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation tags bound into auth scopes.
const (
	OpDeposit            = "deposit"
	OpWithdraw           = "withdraw"
	OpLockEscrow         = "lock_escrow"
	OpUnlockEscrow       = "unlock_escrow"
	OpSetWhitelist       = "set_whitelist_enforcement"
	OpRotateVerifyingKey = "rotate_verification_key"
)

// AuthScope builds the canonical byte string a participant signs to authorize
// a balance operation: the operation tag, a zero separator, the participant
// and asset addresses, and the amount as a 32-byte big-endian word.
func AuthScope(op string, participant, asset common.Address, amount *big.Int) []byte {
	buf := make([]byte, 0, len(op)+1+2*common.AddressLength+common.HashLength)
	buf = append(buf, op...)
	buf = append(buf, 0x00)
	buf = append(buf, participant.Bytes()...)
	buf = append(buf, asset.Bytes()...)
	buf = append(buf, common.BigToHash(amount).Bytes()...)
	return buf
}

// AdminScope builds the canonical byte string the admin signs to authorize an
// administrative operation over an arbitrary payload.
func AdminScope(op string, admin common.Address, payload []byte) []byte {
	buf := make([]byte, 0, len(op)+1+common.AddressLength+len(payload))
	buf = append(buf, op...)
	buf = append(buf, 0x00)
	buf = append(buf, admin.Bytes()...)
	buf = append(buf, payload...)
	return buf
}
