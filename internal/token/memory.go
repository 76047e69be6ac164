// memory.go - In-process token book backing tests and the demo scenario.

package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type holding struct {
	holder common.Address
	asset  common.Address
}

// Memory is a minimal multi-asset token book. The settlement custody account
// is one holder among many; TransferIn and TransferOut move balances between
// participants and custody.
type Memory struct {
	mu       sync.Mutex
	custody  common.Address
	balances map[holding]*big.Int
}

// NewMemory creates an empty book with the given custody account.
func NewMemory(custody common.Address) *Memory {
	return &Memory{
		custody:  custody,
		balances: make(map[holding]*big.Int),
	}
}

// Mint credits amount of asset to holder out of thin air.
func (m *Memory) Mint(holder, asset common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := holding{holder: holder, asset: asset}
	current := m.balances[key]
	if current == nil {
		current = new(big.Int)
	}
	m.balances[key] = new(big.Int).Add(current, amount)
}

// BalanceOf returns holder's balance of asset.
func (m *Memory) BalanceOf(holder, asset common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.balances[holding{holder: holder, asset: asset}]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TransferIn moves amount of asset from the participant to custody.
func (m *Memory) TransferIn(ctx context.Context, participant, asset common.Address, amount *big.Int) error {
	return m.move(participant, m.custody, asset, amount)
}

// TransferOut moves amount of asset from custody to the participant.
func (m *Memory) TransferOut(ctx context.Context, participant, asset common.Address, amount *big.Int) error {
	return m.move(m.custody, participant, asset, amount)
}

func (m *Memory) move(from, to common.Address, asset common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := holding{holder: from, asset: asset}
	balance := m.balances[fromKey]
	if balance == nil || balance.Cmp(amount) < 0 {
		return fmt.Errorf("holder %s has insufficient %s balance", from, asset)
	}
	m.balances[fromKey] = new(big.Int).Sub(balance, amount)

	toKey := holding{holder: to, asset: asset}
	current := m.balances[toKey]
	if current == nil {
		current = new(big.Int)
	}
	m.balances[toKey] = new(big.Int).Add(current, amount)
	return nil
}
