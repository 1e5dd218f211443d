// Package chain talks to the EVM network that holds cohort membership locks.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"Bootcamp/internal/config"
)

var (
	// ErrNotFound is returned when the node does not know a transaction.
	ErrNotFound = errors.New("chain: not found")
	// ErrNoSigner is returned by GrantKey when no manager key is configured.
	ErrNoSigner      = errors.New("chain: no lock manager key configured")
	ErrGrantReverted = errors.New("chain: grant transaction reverted")
)

// GrantKeyParams describes one membership key to issue.
type GrantKeyParams struct {
	LockAddress string
	Recipient   string
	KeyManagers []string
	Expiration  time.Time
}

type Client struct {
	eth            *ethclient.Client
	lockABI        abi.ABI
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	receiptTimeout time.Duration
}

// NewClient dials the RPC endpoint. The signing key is optional; without it
// the client is read-only.
func NewClient(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: rpc url is empty")
	}
	parsed, err := abi.JSON(strings.NewReader(publicLockABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse lock abi: %w", err)
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	c := &Client{
		eth:            eth,
		lockABI:        parsed,
		chainID:        big.NewInt(cfg.ChainID),
		receiptTimeout: cfg.ReceiptTimeout,
	}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain: parse manager key: %w", err)
		}
		c.key = key
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = 2 * time.Minute
	}
	return c, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	return receipt, err
}

// TransactionByHash reports whether the node knows the transaction and
// whether it is still in the mempool.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (bool, bool, error) {
	_, pending, err := c.eth.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, pending, nil
}

func (c *Client) lock(address string) *bind.BoundContract {
	return bind.NewBoundContract(common.HexToAddress(address), c.lockABI, c.eth, c.eth, c.eth)
}

func (c *Client) HasValidKey(ctx context.Context, lockAddress, wallet string) (bool, error) {
	var out []interface{}
	err := c.lock(lockAddress).Call(&bind.CallOpts{Context: ctx}, &out, "getHasValidKey", common.HexToAddress(wallet))
	if err != nil {
		return false, fmt.Errorf("chain: getHasValidKey: %w", err)
	}
	if len(out) == 0 {
		return false, fmt.Errorf("chain: getHasValidKey returned nothing")
	}
	valid, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: getHasValidKey returned %T", out[0])
	}
	return valid, nil
}

// GrantKey sends grantKeys for a single recipient and waits for it to be
// mined. It returns the transaction hash.
func (c *Client) GrantKey(ctx context.Context, p GrantKeyParams) (string, error) {
	if c.key == nil {
		return "", ErrNoSigner
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return "", fmt.Errorf("chain: transactor: %w", err)
	}
	auth.Context = ctx

	manager := crypto.PubkeyToAddress(c.key.PublicKey)
	if len(p.KeyManagers) > 0 && common.IsHexAddress(p.KeyManagers[0]) {
		manager = common.HexToAddress(p.KeyManagers[0])
	}

	tx, err := c.lock(p.LockAddress).Transact(auth, "grantKeys",
		[]common.Address{common.HexToAddress(p.Recipient)},
		[]*big.Int{big.NewInt(p.Expiration.Unix())},
		[]common.Address{manager},
	)
	if err != nil {
		return "", fmt.Errorf("chain: grantKeys: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return tx.Hash().Hex(), fmt.Errorf("chain: wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), ErrGrantReverted
	}
	return tx.Hash().Hex(), nil
}
