// errors.go - Engine-level sentinel errors.
//
// Ledger-level conditions (insufficient balances, reused nullifiers,
// duplicate matches) surface as the ledger package's sentinels; this file
// covers the conditions the engine itself detects.

package settlement

import "errors"

var (
	// ErrOnlyAdmin is returned when a non-admin calls an admin operation.
	ErrOnlyAdmin = errors.New("caller is not the admin")

	// ErrUnauthorized is returned when a participant's credential does not
	// authenticate the requested operation.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrInvalidProof is returned for malformed signal payloads, wrong
	// signal counts, and proofs the verifier rejects.
	ErrInvalidProof = errors.New("invalid settlement proof")

	// ErrWhitelistRootMismatch is returned when the proof's whitelist root
	// does not match the registry's current root.
	ErrWhitelistRootMismatch = errors.New("whitelist root mismatch")

	// ErrAssetNotEligible is returned when the registry does not list the
	// asset.
	ErrAssetNotEligible = errors.New("asset not eligible")

	// ErrParticipantNotEligible is returned when the registry does not list
	// the participant.
	ErrParticipantNotEligible = errors.New("participant not eligible")

	// ErrTransferFailed is returned when the token collaborator rejects a
	// transfer.
	ErrTransferFailed = errors.New("token transfer failed")
)
