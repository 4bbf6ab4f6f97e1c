package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metuDein/aaveflashbot/chain"
	"github.com/metuDein/aaveflashbot/dex"
	"github.com/metuDein/aaveflashbot/strategies/arbitrage"
	"github.com/metuDein/aaveflashbot/types"
)

var (
	dai  = common.HexToAddress("0xFF34B3d4Aee8ddCd6F9AFFFB6Fe49bD371b8a357")
	unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type stubFunder struct {
	err   error
	calls int
}

func (f *stubFunder) EnsureFunded(ctx context.Context) (bool, error) {
	f.calls++
	return false, f.err
}

type stubFees struct {
	ok     bool
	target float64
}

func (f *stubFees) WaitForAcceptableFee(ctx context.Context, targetGwei float64, maxWait time.Duration) bool {
	f.target = targetGwei
	return f.ok
}

type stubEvaluator struct {
	opp   *types.Opportunity
	err   error
	calls int
}

func (e *stubEvaluator) Evaluate(ctx context.Context, notional *big.Int) (*types.Opportunity, error) {
	e.calls++
	return e.opp, e.err
}

type stubExecutor struct {
	submitErr  error
	outcome    *types.TradeOutcome
	confirmErr error
	submitted  int
}

func (e *stubExecutor) Submit(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error) {
	if e.submitErr != nil {
		return nil, e.submitErr
	}
	e.submitted++
	return ethtypes.NewTx(&ethtypes.DynamicFeeTx{Nonce: 7}), nil
}

func (e *stubExecutor) Confirm(ctx context.Context, tx *ethtypes.Transaction) (*types.TradeOutcome, error) {
	return e.outcome, e.confirmErr
}

type namedVenue struct{ name string }

func (v namedVenue) Name() string           { return v.name }
func (v namedVenue) Router() common.Address { return common.Address{} }
func (v namedVenue) Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	return nil, errors.New("not used")
}
func (v namedVenue) EncodeSwap(params dex.SwapParams) ([]byte, error) { return nil, nil }

func opportunity() *types.Opportunity {
	return &types.Opportunity{
		ID:         "opp-1",
		Amount:     ether(10),
		BaseToken:  dai,
		BuyVenue:   namedVenue{"uniswap"},
		SellVenue:  namedVenue{"sushiswap"},
		BuyOutput:  ether(10),
		SellOutput: ether(11),
		Profit:     ether(1),
	}
}

type fixture struct {
	funder    *stubFunder
	fees      *stubFees
	evaluator *stubEvaluator
	executor  *stubExecutor
	notes     *recorder
	coord     *Coordinator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		funder:    &stubFunder{},
		fees:      &stubFees{ok: true},
		evaluator: &stubEvaluator{opp: opportunity()},
		executor: &stubExecutor{outcome: &types.TradeOutcome{
			BlockNumber: 42,
			Profit:      new(big.Int).Div(unit, big.NewInt(10)),
			ProfitToken: dai,
		}},
		notes: &recorder{},
	}
	coord, err := New(f.funder, f.fees, f.evaluator, f.executor, f.notes, Config{
		TargetGwei:    15,
		MaxWait:       time.Minute,
		Notional:      ether(10),
		BaseToken:     dai,
		BaseSymbol:    "DAI",
		BaseDecimals:  18,
		QuoteSymbol:   "WETH",
		QuoteDecimals: 18,
		TxURL: func(h common.Hash) string {
			return "https://sepolia.etherscan.io/tx/" + h.Hex()
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	f.coord = coord
	return f
}

func TestRunProfitableCycle(t *testing.T) {
	f := newFixture(t)

	report := f.coord.Run(context.Background())

	assert.Equal(t, []State{
		StateFundingCheck, StateFeeWait, StateEvaluating,
		StateSubmitting, StateConfirming, StateDone,
	}, report.Path)
	assert.NoError(t, report.Err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, StateIdle, f.coord.State())
	assert.Equal(t, 15.0, f.fees.target)
	require.NotNil(t, report.Tx)

	assert.True(t, f.notes.contains("💰 Opportunity Found\nuniswap: 10 WETH per 10 DAI\nsushiswap: 11 WETH\nExpected Profit: 1 DAI"))
	assert.True(t, f.notes.contains("⚡ Executing flash loan for 10 DAI"))
	assert.True(t, f.notes.contains("📝 Transaction sent: https://sepolia.etherscan.io/tx/"+report.Tx.Hash().Hex()))
	assert.True(t, f.notes.contains("✅ Transaction confirmed in block: 42"))
	assert.True(t, f.notes.contains("💰 Profit: 0.1 DAI"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.coord.metrics.cycles.WithLabelValues("DONE")))
}

func TestRunSettlementRevert(t *testing.T) {
	f := newFixture(t)
	hash := common.HexToHash("0xabc")
	f.executor.outcome = &types.TradeOutcome{TxHash: hash, BlockNumber: 43, FailureReason: "reverted"}
	f.executor.confirmErr = &chain.RevertError{
		Reason: "INSUFFICIENT_LIQUIDITY",
		TxHash: hash,
		Err:    chain.ErrReverted,
	}

	var report *CycleReport
	require.NotPanics(t, func() { report = f.coord.Run(context.Background()) })

	assert.Equal(t, StateFailed, report.Final())
	assert.True(t, errors.Is(report.Err, chain.ErrReverted))
	assert.True(t, f.notes.contains("❌ Transaction failed"))
	assert.True(t, f.notes.contains("INSUFFICIENT_LIQUIDITY"))
	assert.True(t, f.notes.contains("Tx: https://sepolia.etherscan.io/tx/"+hash.Hex()))
	assert.Equal(t, StateIdle, f.coord.State())

	// The next cycle starts from IDLE as usual.
	f.executor.confirmErr = nil
	f.executor.outcome = &types.TradeOutcome{BlockNumber: 44}
	report = f.coord.Run(context.Background())
	assert.Equal(t, StateDone, report.Final())
	assert.True(t, f.notes.contains("⚠️ No profit event found in transaction logs"))
}

func TestRunSubmitFailureCarriesNodeReason(t *testing.T) {
	f := newFixture(t)
	f.executor.submitErr = fmt.Errorf("failed to execute flash loan: %w",
		errors.New("gas estimation failed: execution reverted: ROUTER_EXPIRED"))

	report := f.coord.Run(context.Background())

	assert.Equal(t, []State{
		StateFundingCheck, StateFeeWait, StateEvaluating, StateSubmitting, StateFailed,
	}, report.Path)
	assert.True(t, f.notes.contains("ROUTER_EXPIRED"))
	assert.Zero(t, f.executor.submitted)
}

func TestRunFeeTimeout(t *testing.T) {
	f := newFixture(t)
	f.fees.ok = false

	report := f.coord.Run(context.Background())

	assert.Equal(t, []State{StateFundingCheck, StateFeeWait, StateDone}, report.Path)
	assert.Zero(t, f.evaluator.calls)
	assert.Zero(t, f.executor.submitted)
}

func TestRunNoOpportunity(t *testing.T) {
	f := newFixture(t)
	f.evaluator.opp = nil

	report := f.coord.Run(context.Background())

	assert.Equal(t, StateDone, report.Final())
	assert.Nil(t, report.Opportunity)
	assert.True(t, f.notes.contains("🔍 No profitable opportunity found"))
	assert.Zero(t, f.executor.submitted)
}

func TestRunQuoteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.evaluator.opp = nil
	f.evaluator.err = fmt.Errorf("%w: sushiswap: timeout", arbitrage.ErrQuoteFailed)

	report := f.coord.Run(context.Background())

	assert.Equal(t, StateDone, report.Final())
	assert.True(t, errors.Is(report.Err, arbitrage.ErrQuoteFailed))
	assert.Zero(t, f.executor.submitted)
}

func TestRunFundingFailure(t *testing.T) {
	f := newFixture(t)
	f.funder.err = errors.New("rpc unavailable")

	report := f.coord.Run(context.Background())

	assert.Equal(t, []State{StateFundingCheck, StateFailed}, report.Path)
	assert.True(t, f.notes.contains("💥 Bot error: rpc unavailable"))
	assert.Zero(t, f.evaluator.calls)
	assert.Equal(t, StateIdle, f.coord.State())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &stubFees{}, &stubEvaluator{}, &stubExecutor{}, &recorder{}, Config{Notional: big.NewInt(1)}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = New(&stubFunder{}, &stubFees{}, &stubEvaluator{}, &stubExecutor{}, &recorder{}, Config{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FUNDING_CHECK", StateFundingCheck.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateConfirming.Terminal())
}
