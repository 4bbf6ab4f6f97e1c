package testutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TestKey returns a fixed private key so addresses are stable across runs.
func TestKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	return key
}

// RevertData encodes reason as an Error(string) revert payload.
func RevertData(t *testing.T, reason string) []byte {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)

	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return append(selector, packed...)
}

// RPCError mimics a JSON-RPC error that carries revert data.
type RPCError struct {
	Msg  string
	Data interface{}
}

func (e *RPCError) Error() string          { return e.Msg }
func (e *RPCError) ErrorData() interface{} { return e.Data }

// Backend is an in-memory node used by package tests. Sent transactions are
// recorded and, when Mine is set, immediately get a receipt.
type Backend struct {
	mu sync.Mutex

	GasPrice    *big.Int
	TipCap      *big.Int
	BaseFee     *big.Int
	GasEstimate uint64
	EstimateErr error
	GasPriceErr error
	SendErr     error
	Nonce       uint64

	// CallFn answers eth_call. Nil returns empty output.
	CallFn func(msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	// StallCalls makes eth_call block until its context is done.
	StallCalls bool
	// Mine builds the receipt for a sent transaction. Nil leaves it pending.
	Mine func(tx *types.Transaction) *types.Receipt

	Sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

// NewBackend returns a backend with sensible fee defaults.
func NewBackend() *Backend {
	return &Backend{
		GasPrice:    big.NewInt(10_000_000_000),
		TipCap:      big.NewInt(1_000_000_000),
		BaseFee:     big.NewInt(8_000_000_000),
		GasEstimate: 100_000,
		receipts:    make(map[common.Hash]*types.Receipt),
	}
}

// SuccessReceipt mines tx in block 100 with the given logs.
func SuccessReceipt(logs ...*types.Log) func(tx *types.Transaction) *types.Receipt {
	return func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			BlockNumber: big.NewInt(100),
			GasUsed:     tx.Gas() / 2,
			Logs:        logs,
		}
	}
}

// FailedReceipt mines tx in block 100 with a failed status.
func FailedReceipt(tx *types.Transaction) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(100),
		GasUsed:     tx.Gas(),
	}
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(99), BaseFee: b.BaseFee}, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.GasPriceErr != nil {
		return nil, b.GasPriceErr
	}
	return b.GasPrice, nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return b.TipCap, nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if b.StallCalls {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.CallFn == nil {
		return nil, nil
	}
	return b.CallFn(msg, blockNumber)
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		return b.SendErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Sent = append(b.Sent, tx)
	b.Nonce++
	if b.Mine != nil {
		if b.receipts == nil {
			b.receipts = make(map[common.Hash]*types.Receipt)
		}
		b.receipts[tx.Hash()] = b.Mine(tx)
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

// SentCount returns the number of transactions sent so far.
func (b *Backend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

// LastSent returns the most recent transaction or an error when none was sent.
func (b *Backend) LastSent() (*types.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Sent) == 0 {
		return nil, errors.New("no transactions sent")
	}
	return b.Sent[len(b.Sent)-1], nil
}
