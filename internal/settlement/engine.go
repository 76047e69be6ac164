// engine.go - Settlement engine construction, configuration, and queries.

package settlement

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"darkpool/internal/ledger"
)

// Config carries the values fixed at initialization: the admin identity, the
// addresses of the registry and verifier collaborators, and the serialized
// verification key for settlement proofs.
type Config struct {
	Admin            common.Address
	RegistryAddress  common.Address
	VerifierAddress  common.Address
	VerificationKey  []byte
	EnforceWhitelist bool

	// Clock supplies settlement timestamps as unix seconds. Defaults to the
	// system clock.
	Clock func() uint64
}

// Collaborators bundles the external systems the engine drives.
type Collaborators struct {
	Token    TokenTransferrer
	Verifier ProofVerifier
	Registry WhitelistRegistry
	Auth     Authenticator
}

// Engine settles confidential trades against an escrow ledger. One engine
// owns one ledger; all mutation funnels through the ledger's transaction
// envelope.
type Engine struct {
	ledger   *ledger.Ledger
	token    TokenTransferrer
	verifier ProofVerifier
	registry WhitelistRegistry
	auth     Authenticator

	admin        common.Address
	registryAddr common.Address
	verifierAddr common.Address

	mu               sync.RWMutex
	vk               []byte
	enforceWhitelist bool

	now func() uint64
}

// New builds an engine over the given ledger.
func New(l *ledger.Ledger, cfg Config, collab Collaborators) (*Engine, error) {
	if l == nil {
		return nil, errors.New("settlement: nil ledger")
	}
	if collab.Token == nil {
		return nil, errors.New("settlement: nil token transferrer")
	}
	if collab.Verifier == nil {
		return nil, errors.New("settlement: nil proof verifier")
	}
	if collab.Auth == nil {
		return nil, errors.New("settlement: nil authenticator")
	}
	if cfg.EnforceWhitelist && collab.Registry == nil {
		return nil, errors.New("settlement: whitelist enforcement requires a registry")
	}
	if len(cfg.VerificationKey) == 0 {
		return nil, errors.New("settlement: empty verification key")
	}

	now := cfg.Clock
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	vk := make([]byte, len(cfg.VerificationKey))
	copy(vk, cfg.VerificationKey)

	return &Engine{
		ledger:           l,
		token:            collab.Token,
		verifier:         collab.Verifier,
		registry:         collab.Registry,
		auth:             collab.Auth,
		admin:            cfg.Admin,
		registryAddr:     cfg.RegistryAddress,
		verifierAddr:     cfg.VerifierAddress,
		vk:               vk,
		enforceWhitelist: cfg.EnforceWhitelist,
		now:              now,
	}, nil
}

// Admin returns the admin identity set at initialization.
func (e *Engine) Admin() common.Address { return e.admin }

// RegistryAddress returns the whitelist registry address set at
// initialization.
func (e *Engine) RegistryAddress() common.Address { return e.registryAddr }

// VerifierAddress returns the proof verifier address set at initialization.
func (e *Engine) VerifierAddress() common.Address { return e.verifierAddr }

// VerificationKey returns a copy of the current settlement verification key.
func (e *Engine) VerificationKey() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]byte, len(e.vk))
	copy(out, e.vk)
	return out
}

// WhitelistEnforced reports whether settlement checks the whitelist root.
func (e *Engine) WhitelistEnforced() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enforceWhitelist
}

// Ledger returns the engine's ledger for read-only queries.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// authenticate wraps collaborator auth failures in ErrUnauthorized.
func (e *Engine) authenticate(participant common.Address, scope, credential []byte) error {
	if err := e.auth.Authenticate(participant, scope, credential); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// verificationKey returns the live key under the read lock.
func (e *Engine) verificationKey() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vk
}
