// admin.go - Admin-gated configuration changes.

package settlement

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// SetWhitelistEnforcement toggles the whitelist root check on settlement and
// the eligibility checks on deposit. Only the admin may call it.
func (e *Engine) SetWhitelistEnforcement(caller common.Address, credential []byte, enabled bool) error {
	payload := []byte{0x00}
	if enabled {
		payload[0] = 0x01
	}
	if err := e.authenticate(caller, AdminScope(OpSetWhitelist, caller, payload), credential); err != nil {
		return err
	}
	if caller != e.admin {
		return ErrOnlyAdmin
	}
	if enabled && e.registry == nil {
		return errors.New("settlement: whitelist enforcement requires a registry")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.enforceWhitelist = enabled
	return nil
}

// RotateVerificationKey replaces the settlement verification key. Only the
// admin may call it. In-flight settlements keep the key they started with.
func (e *Engine) RotateVerificationKey(caller common.Address, credential []byte, vk []byte) error {
	if err := e.authenticate(caller, AdminScope(OpRotateVerifyingKey, caller, vk), credential); err != nil {
		return err
	}
	if caller != e.admin {
		return ErrOnlyAdmin
	}
	if len(vk) == 0 {
		return errors.New("settlement: empty verification key")
	}

	next := make([]byte, len(vk))
	copy(next, vk)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.vk = next
	return nil
}
