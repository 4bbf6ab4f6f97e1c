// Package coordinator sequences one trade cycle: funding check, fee wait,
// evaluation, flash loan submission and confirmation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/chain"
	"github.com/metuDein/aaveflashbot/types"
	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

type Funder interface {
	EnsureFunded(ctx context.Context) (bool, error)
}

type FeeGate interface {
	WaitForAcceptableFee(ctx context.Context, targetGwei float64, maxWait time.Duration) bool
}

type Evaluator interface {
	Evaluate(ctx context.Context, notional *big.Int) (*types.Opportunity, error)
}

// Executor submits the flash loan for an opportunity and waits for its
// receipt.
type Executor interface {
	Submit(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error)
	Confirm(ctx context.Context, tx *ethtypes.Transaction) (*types.TradeOutcome, error)
}

type Notifier interface {
	Notify(msg string)
}

type Config struct {
	TargetGwei float64
	MaxWait    time.Duration
	Notional   *big.Int

	BaseToken     common.Address
	BaseSymbol    string
	BaseDecimals  uint8
	QuoteSymbol   string
	QuoteDecimals uint8

	// TxURL renders a transaction hash for operator messages
	TxURL func(common.Hash) string
}

// CycleReport describes one completed Run.
type CycleReport struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Path        []State
	Opportunity *types.Opportunity
	Tx          *ethtypes.Transaction
	Outcome     *types.TradeOutcome
	Err         error
}

// Final returns the terminal state of the cycle.
func (r *CycleReport) Final() State {
	if len(r.Path) == 0 {
		return StateIdle
	}
	return r.Path[len(r.Path)-1]
}

func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Coordinator runs trade cycles. Run is not safe for concurrent use; the
// scheduler serializes cycles.
type Coordinator struct {
	funder    Funder
	fees      FeeGate
	evaluator Evaluator
	executor  Executor
	notifier  Notifier
	cfg       Config
	logger    *zap.Logger
	state     atomic.Int32
	metrics   *coordinatorMetrics
}

type coordinatorMetrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	state         prometheus.Gauge
}

func New(funder Funder, fees FeeGate, evaluator Evaluator, executor Executor, notifier Notifier, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if funder == nil || fees == nil || evaluator == nil || executor == nil || notifier == nil {
		return nil, errors.New("coordinator: all collaborators are required")
	}
	if cfg.Notional == nil || cfg.Notional.Sign() <= 0 {
		return nil, errors.New("coordinator: notional must be positive")
	}
	if cfg.TxURL == nil {
		cfg.TxURL = func(h common.Hash) string { return h.Hex() }
	}

	return &Coordinator{
		funder:    funder,
		fees:      fees,
		evaluator: evaluator,
		executor:  executor,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.Named("coordinator"),
		metrics: &coordinatorMetrics{
			cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "coordinator_cycles_total",
				Help: "Completed cycles by terminal state",
			}, []string{"state"}),
			cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "coordinator_cycle_duration_seconds",
				Help:    "Wall time of a cycle",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			}),
			state: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "coordinator_state",
				Help: "Current coordinator state",
			}),
		},
	}, nil
}

func (c *Coordinator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.metrics.cycles, c.metrics.cycleDuration, c.metrics.state}
}

// State returns the coordinator's current state. It is IDLE between cycles.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run executes one cycle. Failures end the cycle in FAILED and are reported
// through the notifier and the returned report; Run itself never fails.
func (c *Coordinator) Run(ctx context.Context) *CycleReport {
	report := &CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	logger := c.logger.With(zap.String("cycle", report.ID))

	defer func() {
		report.FinishedAt = time.Now()
		final := report.Final()
		c.metrics.cycles.WithLabelValues(final.String()).Inc()
		c.metrics.cycleDuration.Observe(report.Duration().Seconds())
		logger.Info("Cycle finished",
			zap.String("state", final.String()),
			zap.Duration("duration", report.Duration()),
		)
		c.setState(StateIdle)
	}()

	c.transition(report, logger, StateFundingCheck)
	if _, err := c.funder.EnsureFunded(ctx); err != nil {
		c.fail(report, logger, fmt.Errorf("funding check: %w", err), fmt.Sprintf("💥 Bot error: %v", err))
		return report
	}

	c.transition(report, logger, StateFeeWait)
	if !c.fees.WaitForAcceptableFee(ctx, c.cfg.TargetGwei, c.cfg.MaxWait) {
		c.transition(report, logger, StateDone)
		return report
	}

	c.transition(report, logger, StateEvaluating)
	opp, err := c.evaluator.Evaluate(ctx, c.cfg.Notional)
	if err != nil {
		report.Err = err
		logger.Warn("Evaluation failed", zap.Error(err))
		c.notifier.Notify(fmt.Sprintf("⚠️ Scan error: %v", err))
		c.transition(report, logger, StateDone)
		return report
	}
	if opp == nil {
		c.notifier.Notify("🔍 No profitable opportunity found")
		c.transition(report, logger, StateDone)
		return report
	}
	report.Opportunity = opp
	c.notifier.Notify(c.opportunityMessage(opp))

	c.transition(report, logger, StateSubmitting)
	c.notifier.Notify(fmt.Sprintf("⚡ Executing flash loan for %s %s",
		mathutil.FormatUnits(opp.Amount, c.cfg.BaseDecimals), c.cfg.BaseSymbol))
	tx, err := c.executor.Submit(ctx, opp)
	if err != nil {
		c.fail(report, logger, err, c.failureMessage(err))
		return report
	}
	report.Tx = tx
	c.notifier.Notify(fmt.Sprintf("📝 Transaction sent: %s", c.cfg.TxURL(tx.Hash())))

	c.transition(report, logger, StateConfirming)
	outcome, err := c.executor.Confirm(ctx, tx)
	report.Outcome = outcome
	if err != nil {
		c.fail(report, logger, err, c.failureMessage(err))
		return report
	}

	c.notifier.Notify(fmt.Sprintf("✅ Transaction confirmed in block: %d", outcome.BlockNumber))
	if outcome.Profit != nil {
		c.notifier.Notify(fmt.Sprintf("💰 Profit: %s", c.formatProfit(outcome)))
	} else {
		c.notifier.Notify("⚠️ No profit event found in transaction logs")
	}

	c.transition(report, logger, StateDone)
	return report
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.state.Set(float64(s))
}

func (c *Coordinator) transition(report *CycleReport, logger *zap.Logger, next State) {
	prev := c.State()
	c.setState(next)
	report.Path = append(report.Path, next)
	logger.Info("State transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Time("at", time.Now()),
	)
}

func (c *Coordinator) fail(report *CycleReport, logger *zap.Logger, err error, msg string) {
	report.Err = err
	logger.Error("Cycle failed", zap.String("state", c.State().String()), zap.Error(err))
	c.notifier.Notify(msg)
	c.transition(report, logger, StateFailed)
}

func (c *Coordinator) failureMessage(err error) string {
	msg := fmt.Sprintf("❌ Transaction failed: %v", err)
	var revertErr *chain.RevertError
	if errors.As(err, &revertErr) && revertErr.TxHash != (common.Hash{}) {
		msg += "\nTx: " + c.cfg.TxURL(revertErr.TxHash)
	}
	if reason, ok := chain.RevertReason(err); ok && !strings.Contains(msg, reason) {
		msg += "\nRevert reason: " + reason
	}
	return msg
}

func (c *Coordinator) opportunityMessage(opp *types.Opportunity) string {
	return fmt.Sprintf("💰 Opportunity Found\n%s: %s %s per %s %s\n%s: %s %s\nExpected Profit: %s %s",
		opp.BuyVenue.Name(),
		mathutil.FormatUnits(opp.BuyOutput, c.cfg.QuoteDecimals), c.cfg.QuoteSymbol,
		mathutil.FormatUnits(opp.Amount, c.cfg.BaseDecimals), c.cfg.BaseSymbol,
		opp.SellVenue.Name(),
		mathutil.FormatUnits(opp.SellOutput, c.cfg.QuoteDecimals), c.cfg.QuoteSymbol,
		mathutil.FormatUnits(opp.Profit, c.cfg.BaseDecimals), c.cfg.BaseSymbol,
	)
}

func (c *Coordinator) formatProfit(outcome *types.TradeOutcome) string {
	if outcome.ProfitToken == c.cfg.BaseToken {
		return fmt.Sprintf("%s %s", mathutil.FormatUnits(outcome.Profit, c.cfg.BaseDecimals), c.cfg.BaseSymbol)
	}
	return fmt.Sprintf("%s %s", mathutil.FormatUnits(outcome.Profit, c.cfg.BaseDecimals), outcome.ProfitToken.Hex())
}
