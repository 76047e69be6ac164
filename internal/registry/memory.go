// memory.go - In-memory whitelist registry with a MiMC-accumulated root.
//
// The root folds every admitted member into a running MiMC hash, so it
// changes whenever the eligibility set grows and two registries admitting
// the same members in the same order agree on the root.

package registry

import (
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common"
)

// Domain tags keeping participant and asset admissions distinct in the root.
const (
	participantTag = 0x01
	assetTag       = 0x02
)

// Memory is a process-local whitelist registry.
type Memory struct {
	mu           sync.RWMutex
	root         common.Hash
	participants map[common.Address]struct{}
	assets       map[common.Address]struct{}
}

// NewMemory creates an empty registry with a zero root.
func NewMemory() *Memory {
	return &Memory{
		participants: make(map[common.Address]struct{}),
		assets:       make(map[common.Address]struct{}),
	}
}

// AddParticipant admits a participant and returns the new root. Admitting a
// known member changes nothing.
func (r *Memory) AddParticipant(participant common.Address) common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[participant]; ok {
		return r.root
	}
	r.participants[participant] = struct{}{}
	r.root = foldMember(r.root, participantTag, participant)
	return r.root
}

// AddAsset admits an asset and returns the new root.
func (r *Memory) AddAsset(asset common.Address) common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[asset]; ok {
		return r.root
	}
	r.assets[asset] = struct{}{}
	r.root = foldMember(r.root, assetTag, asset)
	return r.root
}

// WhitelistRoot returns the current root.
func (r *Memory) WhitelistRoot(ctx context.Context) (common.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root, nil
}

// ParticipantEligible reports whether the participant is admitted.
func (r *Memory) ParticipantEligible(ctx context.Context, participant common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[participant]
	return ok, nil
}

// AssetEligible reports whether the asset is admitted.
func (r *Memory) AssetEligible(ctx context.Context, asset common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assets[asset]
	return ok, nil
}

// foldMember absorbs one admission into the root: MiMC over the previous
// root, the domain tag, and the member address, each as a 32-byte block.
func foldMember(root common.Hash, tag byte, member common.Address) common.Hash {
	h := mimc.NewMiMC()
	h.Write(root.Bytes())
	h.Write(common.BytesToHash([]byte{tag}).Bytes())
	h.Write(common.BytesToHash(member.Bytes()).Bytes())
	return common.BytesToHash(h.Sum(nil))
}
