// groth16.go - Byte-level Groth16 verification for settlement proofs.
//
// The engine stores the verification key and receives proofs as opaque
// bytes. This adapter deserializes both, rebuilds the public witness from
// the raw signal payload, and runs pairing verification on BN254, the curve
// of the settlement proving system.

package verifier

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"darkpool/internal/signals"
)

// settlementWitness mirrors the public interface of the settlement circuit:
// seven field elements in signal order.
type settlementWitness struct {
	Signals [signals.SettlementFieldCount]frontend.Variable `gnark:",public"`
}

// Groth16 verifies serialized Groth16 settlement proofs.
type Groth16 struct {
	curve ecc.ID
}

// NewGroth16 returns a verifier on BN254.
func NewGroth16() *Groth16 {
	return &Groth16{curve: ecc.BN254}
}

// Verify checks proofBytes against vkBytes and the public-signal payload.
// A proof the backend rejects yields (false, nil); inputs that cannot be
// deserialized yield (false, err).
func (g *Groth16) Verify(vkBytes, proofBytes, publicSignals []byte) (bool, error) {
	// Step 1: Decode the signal payload
	sigs, err := signals.Decode(publicSignals)
	if err != nil {
		return false, fmt.Errorf("decode public signals: %w", err)
	}
	if len(sigs) != signals.SettlementFieldCount {
		return false, fmt.Errorf("got %d public signals, want %d", len(sigs), signals.SettlementFieldCount)
	}

	// Step 2: Unmarshal the verification key
	vk := groth16.NewVerifyingKey(g.curve)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return false, fmt.Errorf("unmarshal verification key: %w", err)
	}

	// Step 3: Unmarshal the proof
	proof := groth16.NewProof(g.curve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, fmt.Errorf("unmarshal proof: %w", err)
	}

	// Step 4: Build the public witness from the signals
	var assignment settlementWitness
	for i, s := range sigs {
		assignment.Signals[i] = new(big.Int).SetBytes(s.Bytes())
	}
	w, err := frontend.NewWitness(&assignment, g.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("build public witness: %w", err)
	}

	// Step 5: Pairing check
	if err := groth16.Verify(proof, vk, w); err != nil {
		return false, nil
	}
	return true, nil
}
