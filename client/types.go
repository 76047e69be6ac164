// types.go - Wire types shared by the daemon and the SDK.

package client

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"darkpool/internal/ledger"
)

// BalanceOpRequest is the request body for deposit, withdraw, lock and
// unlock. Amount is a base-unit integer encoded as a decimal string.
type BalanceOpRequest struct {
	Participant common.Address `json:"participant"`
	Asset       common.Address `json:"asset"`
	Amount      string         `json:"amount"`
	Credential  hexutil.Bytes  `json:"credential,omitempty"`
}

// SettleRequest is the request body for settlement submissions. Proof
// and PublicSignals carry the opaque prover outputs as hex strings.
type SettleRequest struct {
	MatchID       common.Hash    `json:"match_id"`
	Buyer         common.Address `json:"buyer"`
	Seller        common.Address `json:"seller"`
	Asset         common.Address `json:"asset"`
	PaymentAsset  common.Address `json:"payment_asset"`
	Quantity      string         `json:"quantity"`
	Price         string         `json:"price"`
	Proof         hexutil.Bytes  `json:"proof"`
	PublicSignals hexutil.Bytes  `json:"public_signals"`
}

// AmountResponse reports the participant's escrow balance after a
// deposit or withdrawal.
type AmountResponse struct {
	Participant common.Address `json:"participant"`
	Asset       common.Address `json:"asset"`
	Balance     *big.Int       `json:"balance"`
}

// BalanceResponse is the full balance view for one account key.
type BalanceResponse struct {
	Participant common.Address `json:"participant"`
	Asset       common.Address `json:"asset"`
	Escrow      *big.Int       `json:"escrow"`
	Locked      *big.Int       `json:"locked"`
	Available   *big.Int       `json:"available"`
}

// NullifierResponse reports whether one nullifier has been consumed.
type NullifierResponse struct {
	Nullifier common.Hash `json:"nullifier"`
	Used      bool        `json:"used"`
}

// NullifiersResponse lists consumed nullifiers in consumption order.
type NullifiersResponse struct {
	Nullifiers []common.Hash `json:"nullifiers"`
}

// SettlementsResponse lists settlement records in append order.
type SettlementsResponse struct {
	Settlements []ledger.SettlementRecord `json:"settlements"`
}

// HealthResponse is the daemon health report.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// EnforcementRequest toggles whitelist enforcement. Caller must be the
// configured admin.
type EnforcementRequest struct {
	Caller     common.Address `json:"caller"`
	Enabled    bool           `json:"enabled"`
	Credential hexutil.Bytes  `json:"credential,omitempty"`
}

// VerifyingKeyRequest installs a new Groth16 verifying key. Caller must
// be the configured admin.
type VerifyingKeyRequest struct {
	Caller       common.Address `json:"caller"`
	VerifyingKey hexutil.Bytes  `json:"verifying_key"`
	Credential   hexutil.Bytes  `json:"credential,omitempty"`
}

// StatusResponse acknowledges an admin operation.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the daemon's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
