// client.go - HTTP SDK for the settlement daemon.

package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"darkpool/internal/ledger"
)

// Client talks to a settlement daemon over its REST API.
type Client struct {
	http *resty.Client
}

// New returns a client bound to the daemon at baseURL.
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

// Deposit moves amount of asset from the participant's token account
// into escrow and returns the new escrow balance.
func (c *Client) Deposit(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (*big.Int, error) {
	req, err := balanceOp(participant, asset, amount, credential)
	if err != nil {
		return nil, err
	}
	var out AmountResponse
	if err := c.post(ctx, "/v1/deposit", req, &out); err != nil {
		return nil, err
	}
	return out.Balance, nil
}

// Withdraw moves amount of asset from available escrow back to the
// participant's token account and returns the new escrow balance.
func (c *Client) Withdraw(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (*big.Int, error) {
	req, err := balanceOp(participant, asset, amount, credential)
	if err != nil {
		return nil, err
	}
	var out AmountResponse
	if err := c.post(ctx, "/v1/withdraw", req, &out); err != nil {
		return nil, err
	}
	return out.Balance, nil
}

// LockEscrow reserves amount of the participant's escrowed asset for
// settlement and returns the resulting balance view.
func (c *Client) LockEscrow(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (BalanceResponse, error) {
	req, err := balanceOp(participant, asset, amount, credential)
	if err != nil {
		return BalanceResponse{}, err
	}
	var out BalanceResponse
	if err := c.post(ctx, "/v1/escrow/lock", req, &out); err != nil {
		return BalanceResponse{}, err
	}
	return out, nil
}

// UnlockEscrow releases a previously locked amount and returns the
// resulting balance view.
func (c *Client) UnlockEscrow(ctx context.Context, participant, asset common.Address, amount *big.Int, credential []byte) (BalanceResponse, error) {
	req, err := balanceOp(participant, asset, amount, credential)
	if err != nil {
		return BalanceResponse{}, err
	}
	var out BalanceResponse
	if err := c.post(ctx, "/v1/escrow/unlock", req, &out); err != nil {
		return BalanceResponse{}, err
	}
	return out, nil
}

// SettleTrade submits a matched trade with its proof and returns the
// recorded settlement.
func (c *Client) SettleTrade(ctx context.Context, req SettleRequest) (ledger.SettlementRecord, error) {
	var out ledger.SettlementRecord
	if err := c.post(ctx, "/v1/settle", req, &out); err != nil {
		return ledger.SettlementRecord{}, err
	}
	return out, nil
}

// Balance fetches the escrow, locked and available balances for one
// participant and asset.
func (c *Client) Balance(ctx context.Context, participant, asset common.Address) (BalanceResponse, error) {
	var out BalanceResponse
	err := c.get(ctx, "/v1/balances/{participant}/{asset}", map[string]string{
		"participant": participant.Hex(),
		"asset":       asset.Hex(),
	}, &out)
	if err != nil {
		return BalanceResponse{}, err
	}
	return out, nil
}

// NullifierUsed reports whether the daemon has consumed the nullifier.
func (c *Client) NullifierUsed(ctx context.Context, nullifier common.Hash) (bool, error) {
	var out NullifierResponse
	err := c.get(ctx, "/v1/nullifiers/{nullifier}", map[string]string{
		"nullifier": nullifier.Hex(),
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Used, nil
}

// Nullifiers lists every consumed nullifier in consumption order.
func (c *Client) Nullifiers(ctx context.Context) ([]common.Hash, error) {
	var out NullifiersResponse
	if err := c.get(ctx, "/v1/nullifiers", nil, &out); err != nil {
		return nil, err
	}
	return out.Nullifiers, nil
}

// Settlements lists every settlement record in append order.
func (c *Client) Settlements(ctx context.Context) ([]ledger.SettlementRecord, error) {
	var out SettlementsResponse
	if err := c.get(ctx, "/v1/settlements", nil, &out); err != nil {
		return nil, err
	}
	return out.Settlements, nil
}

// Settlement fetches the record for one match ID.
func (c *Client) Settlement(ctx context.Context, matchID common.Hash) (ledger.SettlementRecord, error) {
	var out ledger.SettlementRecord
	err := c.get(ctx, "/v1/settlements/{matchID}", map[string]string{
		"matchID": matchID.Hex(),
	}, &out)
	if err != nil {
		return ledger.SettlementRecord{}, err
	}
	return out, nil
}

// SetWhitelistEnforcement toggles eligibility checks on the daemon.
// Only the configured admin may call this.
func (c *Client) SetWhitelistEnforcement(ctx context.Context, caller common.Address, enabled bool, credential []byte) error {
	var out StatusResponse
	return c.post(ctx, "/v1/admin/enforcement", EnforcementRequest{
		Caller:     caller,
		Enabled:    enabled,
		Credential: credential,
	}, &out)
}

// RotateVerificationKey installs a new Groth16 verifying key on the
// daemon. Only the configured admin may call this.
func (c *Client) RotateVerificationKey(ctx context.Context, caller common.Address, verifyingKey, credential []byte) error {
	var out StatusResponse
	return c.post(ctx, "/v1/admin/verifying-key", VerifyingKeyRequest{
		Caller:       caller,
		VerifyingKey: verifyingKey,
		Credential:   credential,
	}, &out)
}

// Health fetches the daemon health report.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/healthz", nil, &out); err != nil {
		return HealthResponse{}, err
	}
	return out, nil
}

func balanceOp(participant, asset common.Address, amount *big.Int, credential []byte) (BalanceOpRequest, error) {
	amt, err := FormatAmount(amount)
	if err != nil {
		return BalanceOpRequest{}, err
	}
	return BalanceOpRequest{
		Participant: participant,
		Asset:       asset,
		Amount:      amt,
		Credential:  credential,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&ErrorResponse{}).
		Post(path)
	return checkResponse(resp, err)
}

func (c *Client) get(ctx context.Context, path string, pathParams map[string]string, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&ErrorResponse{})
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	resp, err := req.Get(path)
	return checkResponse(resp, err)
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*ErrorResponse); ok && e.Error != "" {
			return fmt.Errorf("daemon returned %s: %s", resp.Status(), e.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status())
	}
	return nil
}
