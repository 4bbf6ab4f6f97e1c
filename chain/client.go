package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// gasBufferPercent is added on top of every gas estimate.
const gasBufferPercent = 20

// Backend is the subset of the node API the client needs. *ethclient.Client
// satisfies it.
type Backend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Client signs and submits transactions for a single account and wraps the
// read calls the bot needs. Nonce allocation is serialized.
type Client struct {
	backend     Backend
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	signer      types.Signer
	limiter     *rate.Limiter
	// waitTimeout caps how long a call queues for the limiter
	waitTimeout time.Duration
	logger      *zap.Logger

	sendMu sync.Mutex
}

// NewClient builds a client for the given key. A nil limiter disables RPC
// pacing; a zero waitTimeout leaves the limiter wait bounded by the caller's
// context only.
func NewClient(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, limiter *rate.Limiter, waitTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		backend:     backend,
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:     new(big.Int).Set(chainID),
		signer:      types.LatestSignerForChainID(chainID),
		limiter:     limiter,
		waitTimeout: waitTimeout,
		logger:      logger.Named("chain"),
	}
}

// Address returns the signing account.
func (c *Client) Address() common.Address {
	return c.from
}

// ChainID returns the chain the client signs for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.waitTimeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rpc rate limit: %w", err)
	}
	return nil
}

// FeeLevel returns the node's current gas price suggestion in wei.
func (c *Client) FeeLevel(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// Call executes a read-only call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapRevert(err, common.Hash{})
	}
	return out, nil
}

// Submit signs and sends an EIP-1559 transaction calling to with data. The gas
// limit is estimated and padded; estimation failures carry the revert reason
// when the node returns one.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	msg := ethereum.CallMsg{From: c.from, To: &to, Data: data}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", wrapRevert(err, common.Hash{}))
	}
	gas += gas * gasBufferPercent / 100

	tipCap, feeCap, err := c.feeCaps(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	tx, err := types.SignNewTx(c.key, c.signer, &types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", wrapRevert(err, common.Hash{}))
	}

	c.logger.Info("Transaction sent",
		zap.String("hash", tx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("fee_cap", feeCap.String()),
	)
	return tx, nil
}

// feeCaps returns the priority tip and a fee cap of tip + 2*baseFee. Chains
// without a base fee fall back to the suggested gas price.
func (c *Client) feeCaps(ctx context.Context) (*big.Int, *big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if head.BaseFee == nil {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		return tip, price, nil
	}

	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap, nil
}

// WaitMined blocks until tx is mined. A failed receipt is replayed at its
// block to recover the revert reason and returned as a *RevertError wrapping
// ErrReverted, together with the receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}

	rerr := &RevertError{TxHash: tx.Hash(), Err: ErrReverted}
	if reason, ok := c.replay(ctx, tx, receipt.BlockNumber); ok {
		rerr.Reason = reason
	}
	c.logger.Warn("Transaction reverted",
		zap.String("hash", tx.Hash().Hex()),
		zap.String("reason", rerr.Reason),
	)
	return receipt, rerr
}

func (c *Client) replay(ctx context.Context, tx *types.Transaction, block *big.Int) (string, bool) {
	if err := c.wait(ctx); err != nil {
		return "", false
	}
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, block)
	if err == nil {
		return "", false
	}
	return RevertReason(err)
}
