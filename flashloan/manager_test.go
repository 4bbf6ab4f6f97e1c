package flashloan

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metuDein/aaveflashbot/dex"
	"github.com/metuDein/aaveflashbot/types"
)

var (
	receiver = common.HexToAddress("0x1111111111111111111111111111111111111111")
	baseTok  = common.HexToAddress("0xFF34B3d4Aee8ddCd6F9AFFFB6Fe49bD371b8a357")
	quoteTok = common.HexToAddress("0xC558DBdd856501FCd9aaF1E62eae57A9F0629a3c")
)

// mockProvider implements the Provider interface for testing
type mockProvider struct {
	shouldError bool
	last        *FlashLoanParams
}

func (m *mockProvider) ExecuteFlashLoan(ctx context.Context, params FlashLoanParams) (*ethtypes.Transaction, error) {
	if m.shouldError {
		return nil, errors.New("mock error")
	}
	m.last = &params
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{Nonce: 1, Data: params.Data}), nil
}

func (m *mockProvider) LoanFee(amount *big.Int) *big.Int {
	return new(big.Int).Div(new(big.Int).Mul(amount, big.NewInt(9)), big.NewInt(10000))
}

func (m *mockProvider) String() string { return "mock" }

type mockConfirmer struct {
	receipt *ethtypes.Receipt
	err     error
}

func (m *mockConfirmer) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return m.receipt, m.err
}

type legVenue struct {
	name   string
	router common.Address
	legs   []dex.SwapParams
}

func (v *legVenue) Name() string           { return v.name }
func (v *legVenue) Router() common.Address { return v.router }
func (v *legVenue) Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	return nil, errors.New("not used")
}
func (v *legVenue) EncodeSwap(params dex.SwapParams) ([]byte, error) {
	v.legs = append(v.legs, params)
	return []byte(v.name), nil
}

func testOpportunity(buy, sell dex.Venue) *types.Opportunity {
	return &types.Opportunity{
		ID:         "opp-1",
		Amount:     big.NewInt(10_000),
		BaseToken:  baseTok,
		QuoteToken: quoteTok,
		BuyVenue:   buy,
		SellVenue:  sell,
		Profit:     big.NewInt(150),
	}
}

func profitLog(emitter common.Address, token common.Address, profit int64) *ethtypes.Log {
	data := common.LeftPadBytes(big.NewInt(profit).Bytes(), 32)
	return &ethtypes.Log{
		Address: emitter,
		Topics:  []common.Hash{ProfitEventTopic, common.BytesToHash(token.Bytes())},
		Data:    data,
	}
}

func TestFlashLoanManager(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("SubmitBuildsLegs", func(t *testing.T) {
		provider := &mockProvider{}
		manager := NewFlashLoanManager(provider, &mockConfirmer{}, ManagerConfig{
			Receiver:     receiver,
			MinProfit:    big.NewInt(100),
			SwapDeadline: 5 * time.Minute,
		}, logger)
		fixed := time.Unix(1_700_000_000, 0)
		manager.now = func() time.Time { return fixed }

		buy := &legVenue{name: "sushiswap", router: common.HexToAddress("0xaa")}
		sell := &legVenue{name: "uniswap", router: common.HexToAddress("0xbb")}

		tx, err := manager.Submit(context.Background(), testOpportunity(buy, sell))
		require.NoError(t, err)
		require.NotNil(t, tx)

		require.NotNil(t, provider.last)
		assert.Equal(t, receiver, provider.last.Receiver)
		assert.Equal(t, baseTok, provider.last.Token)
		assert.Equal(t, int64(10_000), provider.last.Amount.Int64())

		require.Len(t, buy.legs, 1)
		assert.Equal(t, baseTok, buy.legs[0].TokenIn)
		assert.Equal(t, quoteTok, buy.legs[0].TokenOut)
		assert.Equal(t, int64(10_000), buy.legs[0].AmountIn.Int64())
		assert.Equal(t, receiver, buy.legs[0].Recipient)
		assert.Equal(t, fixed.Add(5*time.Minute).Unix(), buy.legs[0].Deadline.Int64())

		require.Len(t, sell.legs, 1)
		assert.Equal(t, quoteTok, sell.legs[0].TokenIn)
		assert.Equal(t, baseTok, sell.legs[0].TokenOut)
		assert.Nil(t, sell.legs[0].AmountIn)
		assert.Equal(t, int64(10_150), sell.legs[0].AmountOutMin.Int64())

		params, err := DecodeArbitrageParams(provider.last.Data)
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), params.Notional.Int64())
		assert.Equal(t, int64(100), params.MinProfit.Int64())
		assert.Equal(t, []common.Address{buy.router, sell.router}, params.Routers)
		assert.Equal(t, [][]byte{[]byte("sushiswap"), []byte("uniswap")}, params.Swaps)

		assert.Equal(t, 1.0, testutil.ToFloat64(manager.metrics.submissions))
	})

	t.Run("SubmitError", func(t *testing.T) {
		manager := NewFlashLoanManager(&mockProvider{shouldError: true}, &mockConfirmer{}, ManagerConfig{Receiver: receiver}, logger)
		buy := &legVenue{name: "a"}
		sell := &legVenue{name: "b"}

		_, err := manager.Submit(context.Background(), testOpportunity(buy, sell))
		require.Error(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(manager.metrics.errors.WithLabelValues("submit")))
		assert.Equal(t, 0.0, manager.SuccessRate())
	})

	t.Run("ConfirmWithProfit", func(t *testing.T) {
		confirmer := &mockConfirmer{receipt: &ethtypes.Receipt{
			Status:      ethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(42),
			GasUsed:     250_000,
			Logs:        []*ethtypes.Log{profitLog(receiver, baseTok, 123)},
		}}
		manager := NewFlashLoanManager(&mockProvider{}, confirmer, ManagerConfig{Receiver: receiver}, logger)
		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{Nonce: 3})

		outcome, err := manager.Confirm(context.Background(), tx)
		require.NoError(t, err)
		assert.Equal(t, tx.Hash(), outcome.TxHash)
		assert.Equal(t, uint64(42), outcome.BlockNumber)
		assert.Equal(t, uint64(250_000), outcome.GasUsed)
		require.NotNil(t, outcome.Profit)
		assert.Equal(t, int64(123), outcome.Profit.Int64())
		assert.Equal(t, baseTok, outcome.ProfitToken)
		assert.True(t, outcome.Succeeded())
		assert.Equal(t, 1.0, manager.SuccessRate())
		assert.Equal(t, 123.0, testutil.ToFloat64(manager.metrics.realized))
	})

	t.Run("ConfirmWithoutProfitEvent", func(t *testing.T) {
		confirmer := &mockConfirmer{receipt: &ethtypes.Receipt{
			Status:      ethtypes.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(42),
			// Emitted by another contract and therefore ignored.
			Logs: []*ethtypes.Log{profitLog(common.HexToAddress("0x9999"), baseTok, 5)},
		}}
		manager := NewFlashLoanManager(&mockProvider{}, confirmer, ManagerConfig{Receiver: receiver}, logger)

		outcome, err := manager.Confirm(context.Background(), ethtypes.NewTx(&ethtypes.DynamicFeeTx{}))
		require.NoError(t, err)
		assert.Nil(t, outcome.Profit)
		assert.Equal(t, 1.0, testutil.ToFloat64(manager.metrics.confirmations.WithLabelValues("no_profit_event")))
	})

	t.Run("ConfirmReverted", func(t *testing.T) {
		confirmer := &mockConfirmer{
			receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(43)},
			err:     errors.New("transaction reverted: INSUFFICIENT_LIQUIDITY"),
		}
		manager := NewFlashLoanManager(&mockProvider{}, confirmer, ManagerConfig{Receiver: receiver}, logger)

		outcome, err := manager.Confirm(context.Background(), ethtypes.NewTx(&ethtypes.DynamicFeeTx{}))
		require.Error(t, err)
		require.NotNil(t, outcome)
		assert.False(t, outcome.Succeeded())
		assert.Equal(t, uint64(43), outcome.BlockNumber)
		assert.Contains(t, outcome.FailureReason, "INSUFFICIENT_LIQUIDITY")
		assert.Equal(t, 0.0, manager.SuccessRate())
	})

	t.Run("ConfirmWaitFailed", func(t *testing.T) {
		confirmer := &mockConfirmer{err: context.DeadlineExceeded}
		manager := NewFlashLoanManager(&mockProvider{}, confirmer, ManagerConfig{Receiver: receiver}, logger)

		outcome, err := manager.Confirm(context.Background(), ethtypes.NewTx(&ethtypes.DynamicFeeTx{}))
		assert.Nil(t, outcome)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1.0, testutil.ToFloat64(manager.metrics.confirmations.WithLabelValues("timeout")))
	})
}

func TestArbitrageParamsRoundTrip(t *testing.T) {
	p := &ArbitrageParams{
		Notional:  big.NewInt(1),
		MinProfit: big.NewInt(2),
		Routers:   []common.Address{receiver},
		Swaps:     [][]byte{{0x01, 0x02}},
	}
	data, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodeArbitrageParams(data)
	require.NoError(t, err)
	assert.Equal(t, p.Routers, got.Routers)
	assert.Equal(t, p.Swaps, got.Swaps)

	_, err = (&ArbitrageParams{Notional: big.NewInt(1), MinProfit: big.NewInt(1), Routers: []common.Address{receiver}}).Encode()
	assert.Error(t, err)
}

func TestParseProfit(t *testing.T) {
	other := common.HexToAddress("0x2222")
	logs := []*ethtypes.Log{
		{Address: receiver, Topics: []common.Hash{common.HexToHash("0xdead")}},
		profitLog(other, baseTok, 1),
		profitLog(receiver, quoteTok, 77),
	}

	token, profit, ok := ParseProfit(logs, receiver)
	require.True(t, ok)
	assert.Equal(t, quoteTok, token)
	assert.Equal(t, int64(77), profit.Int64())

	_, _, ok = ParseProfit(logs[:2], receiver)
	assert.False(t, ok)
}
