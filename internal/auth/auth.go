// auth.go - Participant authentication over signed operation scopes.
//
// A credential is a 65-byte secp256k1 signature over the EIP-191 personal
// message digest of the operation scope. The recovered signer must be the
// acting participant. AllowAll exists for tests and closed deployments where
// the transport authenticates callers.

package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the expected credential size: r, s, and a recovery byte.
const SignatureLength = 65

// EIP191 authenticates participants by signature recovery.
type EIP191 struct{}

// NewEIP191 returns the signature-recovery authenticator.
func NewEIP191() *EIP191 { return &EIP191{} }

// Authenticate recovers the credential's signer and requires it to be the
// participant.
func (a *EIP191) Authenticate(participant common.Address, scope, credential []byte) error {
	if len(credential) != SignatureLength {
		return fmt.Errorf("credential is %d bytes, want %d", len(credential), SignatureLength)
	}

	sig := make([]byte, SignatureLength)
	copy(sig, credential)
	// Wallets emit V as 27/28; recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(scope), sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != participant {
		return errors.New("credential signer is not the participant")
	}
	return nil
}

// Sign produces a credential for scope with the given key. The recovery byte
// is emitted in wallet form (27/28).
func Sign(scope []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(scope), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// AllowAll accepts every credential.
type AllowAll struct{}

// Authenticate always succeeds.
func (AllowAll) Authenticate(participant common.Address, scope, credential []byte) error {
	return nil
}
