// erc20.go - ERC20 token movement through an Ethereum JSON-RPC endpoint.
//
// TransferIn pulls funds with transferFrom, so participants must approve the
// custody account on the token contract before depositing. Every transfer
// waits for its receipt; a reverted transaction is reported as an error.

package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","constant":true,"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20Client moves ERC20 tokens on behalf of the custody account, whose
// operator key signs every transaction.
type ERC20Client struct {
	rpc     *ethclient.Client
	abi     abi.ABI
	key     *ecdsa.PrivateKey
	custody common.Address
	chainID *big.Int
}

// NewERC20Client dials the JSON-RPC endpoint and prepares the custody signer.
func NewERC20Client(ctx context.Context, rpcURL string, operatorKey *ecdsa.PrivateKey) (*ERC20Client, error) {
	if operatorKey == nil {
		return nil, errors.New("token: nil operator key")
	}
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	return &ERC20Client{
		rpc:     rpc,
		abi:     parsed,
		key:     operatorKey,
		custody: crypto.PubkeyToAddress(operatorKey.PublicKey),
		chainID: chainID,
	}, nil
}

// Custody returns the account tokens are held under between deposit and
// withdrawal.
func (c *ERC20Client) Custody() common.Address { return c.custody }

// TransferIn pulls amount of asset from the participant into custody via
// transferFrom.
func (c *ERC20Client) TransferIn(ctx context.Context, participant, asset common.Address, amount *big.Int) error {
	data, err := c.abi.Pack("transferFrom", participant, c.custody, amount)
	if err != nil {
		return fmt.Errorf("pack transferFrom: %w", err)
	}
	return c.send(ctx, asset, data)
}

// TransferOut pays amount of asset from custody to the participant.
func (c *ERC20Client) TransferOut(ctx context.Context, participant, asset common.Address, amount *big.Int) error {
	data, err := c.abi.Pack("transfer", participant, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}
	return c.send(ctx, asset, data)
}

// BalanceOf reads the participant's on-chain balance of asset.
func (c *ERC20Client) BalanceOf(ctx context.Context, participant, asset common.Address) (*big.Int, error) {
	data, err := c.abi.Pack("balanceOf", participant)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &asset, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	var balance *big.Int
	if err := c.abi.UnpackIntoInterface(&balance, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	return balance, nil
}

// send signs, submits, and waits out one contract call from the custody
// account.
func (c *ERC20Client) send(ctx context.Context, contract common.Address, data []byte) error {
	nonce, err := c.rpc.PendingNonceAt(ctx, c.custody)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch gas price: %w", err)
	}
	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: c.custody,
		To:   &contract,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.rpc, signed)
	if err != nil {
		return fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", signed.Hash())
	}
	return nil
}
