// signals.go - Wire codec for the public signals attached to a settlement proof.
//
// The payload layout is a 4-byte big-endian field count followed by that many
// 32-byte fields. Bytes past the declared fields are ignored. The settlement
// circuit exposes exactly seven signals; Settlement wraps a decoded sequence
// and names each position.

package signals

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FieldSize is the width of one public signal in bytes.
const FieldSize = 32

// SettlementFieldCount is the number of public signals a settlement proof
// carries.
const SettlementFieldCount = 7

// Signal positions for settlement proofs. The proving system emits the
// nullifier first (it is the circuit's output), followed by the public
// inputs in declaration order.
const (
	IdxNullifier      = 0
	IdxBuyCommitment  = 1
	IdxSellCommitment = 2
	IdxAssetHash      = 3
	IdxQuantity       = 4
	IdxPrice          = 5
	IdxWhitelistRoot  = 6
)

// ErrMalformed is returned when a payload cannot be decoded.
var ErrMalformed = errors.New("malformed public signals")

// Decode parses a signal payload into its 32-byte fields.
func Decode(payload []byte) ([]common.Hash, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: payload shorter than count header", ErrMalformed)
	}
	count := binary.BigEndian.Uint32(payload[:4])
	pos := 4

	out := make([]common.Hash, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+FieldSize > len(payload) {
			return nil, fmt.Errorf("%w: truncated field %d", ErrMalformed, i)
		}
		out = append(out, common.BytesToHash(payload[pos:pos+FieldSize]))
		pos += FieldSize
	}
	return out, nil
}

// Encode serializes signals into the wire layout Decode accepts.
func Encode(sigs []common.Hash) []byte {
	out := make([]byte, 4, 4+len(sigs)*FieldSize)
	binary.BigEndian.PutUint32(out, uint32(len(sigs)))
	for _, s := range sigs {
		out = append(out, s.Bytes()...)
	}
	return out
}

// Settlement is the decoded signal set of one settlement proof.
type Settlement struct {
	sigs [SettlementFieldCount]common.Hash
}

// ForSettlement validates that sigs has the settlement layout and wraps it.
func ForSettlement(sigs []common.Hash) (*Settlement, error) {
	if len(sigs) != SettlementFieldCount {
		return nil, fmt.Errorf("%w: got %d signals, want %d", ErrMalformed, len(sigs), SettlementFieldCount)
	}
	var s Settlement
	copy(s.sigs[:], sigs)
	return &s, nil
}

// ParseSettlement decodes a payload and validates the settlement layout.
func ParseSettlement(payload []byte) (*Settlement, error) {
	sigs, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	return ForSettlement(sigs)
}

// Nullifier returns the proof's replay-protection output.
func (s *Settlement) Nullifier() common.Hash { return s.sigs[IdxNullifier] }

// BuyCommitment returns the buyer-side order commitment.
func (s *Settlement) BuyCommitment() common.Hash { return s.sigs[IdxBuyCommitment] }

// SellCommitment returns the seller-side order commitment.
func (s *Settlement) SellCommitment() common.Hash { return s.sigs[IdxSellCommitment] }

// AssetHash returns the hash binding the traded asset.
func (s *Settlement) AssetHash() common.Hash { return s.sigs[IdxAssetHash] }

// Quantity returns the matched quantity signal as an integer.
func (s *Settlement) Quantity() *big.Int {
	return new(big.Int).SetBytes(s.sigs[IdxQuantity].Bytes())
}

// Price returns the execution price signal as an integer.
func (s *Settlement) Price() *big.Int {
	return new(big.Int).SetBytes(s.sigs[IdxPrice].Bytes())
}

// WhitelistRoot returns the eligibility-set root the proof was built against.
func (s *Settlement) WhitelistRoot() common.Hash { return s.sigs[IdxWhitelistRoot] }

// Signals returns a copy of the raw signal sequence.
func (s *Settlement) Signals() []common.Hash {
	out := make([]common.Hash, SettlementFieldCount)
	copy(out, s.sigs[:])
	return out
}
