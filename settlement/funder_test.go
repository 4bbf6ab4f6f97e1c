package settlement

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metuDein/aaveflashbot/chain"
	"github.com/metuDein/aaveflashbot/utils/testutils"
)

var (
	dai      = common.HexToAddress("0xFF34B3d4Aee8ddCd6F9AFFFB6Fe49bD371b8a357")
	receiver = common.HexToAddress("0x1111111111111111111111111111111111111111")
	oneDAI   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	tenDAI   = new(big.Int).Mul(oneDAI, big.NewInt(10))
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// ledger tracks the token state the fake node reports.
type ledger struct {
	mu        sync.Mutex
	balance   *big.Int
	allowance *big.Int
}

func newFixture(t *testing.T, balance, allowance *big.Int) (*Funder, *testutils.Backend, *ledger, *recorder) {
	state := &ledger{balance: balance, allowance: allowance}
	backend := testutils.NewBackend()

	backend.CallFn = func(msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
		method, err := chain.ERC20ABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		state.mu.Lock()
		defer state.mu.Unlock()
		switch method.Name {
		case "balanceOf":
			return method.Outputs.Pack(new(big.Int).Set(state.balance))
		case "allowance":
			return method.Outputs.Pack(new(big.Int).Set(state.allowance))
		}
		return nil, errors.New("unexpected call")
	}

	contractABI := mustContract(t, receiver, nil).abi
	backend.Mine = func(tx *types.Transaction) *types.Receipt {
		state.mu.Lock()
		defer state.mu.Unlock()
		switch *tx.To() {
		case dai:
			method, err := chain.ERC20ABI.MethodById(tx.Data()[:4])
			require.NoError(t, err)
			args, err := method.Inputs.Unpack(tx.Data()[4:])
			require.NoError(t, err)
			state.allowance = args[1].(*big.Int)
		case receiver:
			method, err := contractABI.MethodById(tx.Data()[:4])
			require.NoError(t, err)
			args, err := method.Inputs.Unpack(tx.Data()[4:])
			require.NoError(t, err)
			state.balance = new(big.Int).Add(state.balance, args[1].(*big.Int))
		}
		return testutils.SuccessReceipt()(tx)
	}

	logger := zaptest.NewLogger(t)
	client := chain.NewClient(backend, testutils.TestKey(t), big.NewInt(11155111), nil, 0, logger)
	notes := &recorder{}
	funder := NewFunder(mustContract(t, receiver, client), client, notes, FunderConfig{
		Token:      dai,
		Symbol:     "DAI",
		Decimals:   18,
		MinBalance: oneDAI,
		TopUp:      tenDAI,
	}, logger)
	return funder, backend, state, notes
}

func mustContract(t *testing.T, addr common.Address, c Chain) *Contract {
	contract, err := NewContract(addr, c)
	require.NoError(t, err)
	return contract
}

func TestEnsureFundedTopsUpAndIsIdempotent(t *testing.T) {
	funder, backend, state, notes := newFixture(t, big.NewInt(0), big.NewInt(0))
	ctx := context.Background()

	sent, err := funder.EnsureFunded(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, 2, backend.SentCount(), "approve then fundContract")
	assert.Equal(t, 0, state.balance.Cmp(tenDAI))

	sent, err = funder.EnsureFunded(ctx)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 2, backend.SentCount(), "second call must not submit")

	require.Len(t, notes.msgs, 2)
	assert.Equal(t, "⚠️ Contract needs DAI for fees - funding...", notes.msgs[0])
	assert.Equal(t, "✅ Contract funded with 10 DAI", notes.msgs[1])
}

func TestEnsureFundedSkipsApprovalWithAllowance(t *testing.T) {
	funder, backend, _, _ := newFixture(t, big.NewInt(5), tenDAI)

	sent, err := funder.EnsureFunded(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Equal(t, 1, backend.SentCount())

	tx, err := backend.LastSent()
	require.NoError(t, err)
	assert.Equal(t, receiver, *tx.To())
}

func TestEnsureFundedNoopWhenFunded(t *testing.T) {
	funder, backend, _, notes := newFixture(t, oneDAI, big.NewInt(0))

	sent, err := funder.EnsureFunded(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, backend.SentCount())
	assert.Empty(t, notes.msgs)
}

func TestEnsureFundedRevert(t *testing.T) {
	funder, backend, _, _ := newFixture(t, big.NewInt(0), tenDAI)
	backend.Mine = testutils.FailedReceipt

	sent, err := funder.EnsureFunded(context.Background())
	assert.True(t, sent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrReverted))
	assert.True(t, strings.Contains(err.Error(), "fundContract"))
}

func TestEnsureFundedStalledNode(t *testing.T) {
	funder, backend, _, notes := newFixture(t, big.NewInt(0), big.NewInt(0))
	funder.cfg.Timeout = 50 * time.Millisecond
	backend.StallCalls = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := funder.EnsureFunded(ctx)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "contract balance")
	assert.False(t, sent)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Zero(t, backend.SentCount())
	assert.Empty(t, notes.msgs)
}
