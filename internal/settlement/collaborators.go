// collaborators.go - External collaborator interfaces consumed by the engine.

package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenTransferrer moves tokens between participants and the settlement
// custody account.
type TokenTransferrer interface {
	// TransferIn pulls amount of asset from the participant into custody.
	TransferIn(ctx context.Context, participant, asset common.Address, amount *big.Int) error
	// TransferOut pays amount of asset from custody to the participant.
	TransferOut(ctx context.Context, participant, asset common.Address, amount *big.Int) error
}

// ProofVerifier checks a serialized proof against a verification key and the
// raw public-signal payload. The engine trusts the boolean verdict; any error
// is treated as an invalid proof.
type ProofVerifier interface {
	Verify(vk, proof, publicSignals []byte) (bool, error)
}

// WhitelistRegistry exposes the eligibility set settlement proofs are built
// against.
type WhitelistRegistry interface {
	WhitelistRoot(ctx context.Context) (common.Hash, error)
	AssetEligible(ctx context.Context, asset common.Address) (bool, error)
	ParticipantEligible(ctx context.Context, participant common.Address) (bool, error)
}

// Authenticator decides whether a credential authorizes a participant to
// perform the operation described by scope.
type Authenticator interface {
	Authenticate(participant common.Address, scope, credential []byte) error
}
