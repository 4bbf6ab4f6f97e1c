package flashloan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/dex"
	"github.com/metuDein/aaveflashbot/types"
)

// ManagerConfig configures how opportunities become flash loan transactions.
type ManagerConfig struct {
	// Receiver is the settlement contract that gets the loan
	Receiver       common.Address
	MinProfit      *big.Int
	ReferralCode   uint16
	SwapDeadline   time.Duration
	ConfirmTimeout time.Duration
}

// FlashLoanManager turns an opportunity into a flash loan transaction and
// tracks its outcome.
type FlashLoanManager struct {
	mu      sync.Mutex
	metrics struct {
		submissions   prometheus.Counter
		confirmations *prometheus.CounterVec
		successRate   prometheus.Gauge
		successCount  prometheus.Counter
		totalCount    prometheus.Counter
		realized      prometheus.Counter
		latency       prometheus.Histogram
		errors        *prometheus.CounterVec
	}
	provider  Provider
	confirmer Confirmer
	cfg       ManagerConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewFlashLoanManager creates a new flash loan manager
func NewFlashLoanManager(provider Provider, confirmer Confirmer, cfg ManagerConfig, logger *zap.Logger) *FlashLoanManager {
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	if cfg.SwapDeadline <= 0 {
		cfg.SwapDeadline = 5 * time.Minute
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}

	m := &FlashLoanManager{
		provider:  provider,
		confirmer: confirmer,
		cfg:       cfg,
		logger:    logger.Named("flashloan"),
		now:       time.Now,
	}

	m.metrics.submissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_submissions_total",
		Help: "Flash loan transactions submitted",
	})
	m.metrics.confirmations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_confirmations_total",
		Help: "Confirmed flash loans by result",
	}, []string{"result"})
	m.metrics.successRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flashloan_success_rate",
		Help: "Success rate of confirmed flash loans",
	})
	m.metrics.successCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_success_count",
		Help: "Number of successful flash loans",
	})
	m.metrics.totalCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_total_count",
		Help: "Total number of confirmed or failed flash loans",
	})
	m.metrics.realized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_realized_profit_base_units",
		Help: "Profit reported by ArbitrageProfit events in token base units",
	})
	m.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_confirmation_latency_seconds",
		Help:    "Time from submission to receipt",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	m.metrics.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_errors_total",
		Help: "Number of flash loan errors by type",
	}, []string{"error_type"})

	return m
}

func (m *FlashLoanManager) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.metrics.submissions,
		m.metrics.confirmations,
		m.metrics.successRate,
		m.metrics.successCount,
		m.metrics.totalCount,
		m.metrics.realized,
		m.metrics.latency,
		m.metrics.errors,
	}
}

// BuildParams encodes the buy and sell legs for opp. The buy leg spends the
// notional; the sell leg spends whatever the buy leg produced and must return
// at least notional plus the expected profit.
func (m *FlashLoanManager) BuildParams(opp *types.Opportunity) ([]byte, error) {
	deadline := big.NewInt(m.now().Add(m.cfg.SwapDeadline).Unix())

	buy, err := opp.BuyVenue.EncodeSwap(dex.SwapParams{
		TokenIn:   opp.BaseToken,
		TokenOut:  opp.QuoteToken,
		Recipient: m.cfg.Receiver,
		AmountIn:  opp.Amount,
		Deadline:  deadline,
	})
	if err != nil {
		return nil, fmt.Errorf("encode buy leg on %s: %w", opp.BuyVenue.Name(), err)
	}

	sell, err := opp.SellVenue.EncodeSwap(dex.SwapParams{
		TokenIn:      opp.QuoteToken,
		TokenOut:     opp.BaseToken,
		Recipient:    m.cfg.Receiver,
		AmountOutMin: new(big.Int).Add(opp.Amount, opp.Profit),
		Deadline:     deadline,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sell leg on %s: %w", opp.SellVenue.Name(), err)
	}

	params := &ArbitrageParams{
		Notional:  opp.Amount,
		MinProfit: m.cfg.MinProfit,
		Routers:   []common.Address{opp.BuyVenue.Router(), opp.SellVenue.Router()},
		Swaps:     [][]byte{buy, sell},
	}
	return params.Encode()
}

// Submit builds and sends the flash loan for opp.
func (m *FlashLoanManager) Submit(ctx context.Context, opp *types.Opportunity) (*ethtypes.Transaction, error) {
	data, err := m.BuildParams(opp)
	if err != nil {
		m.metrics.errors.WithLabelValues("encode").Inc()
		return nil, err
	}

	tx, err := m.provider.ExecuteFlashLoan(ctx, FlashLoanParams{
		Receiver:     m.cfg.Receiver,
		Token:        opp.BaseToken,
		Amount:       opp.Amount,
		Data:         data,
		ReferralCode: m.cfg.ReferralCode,
	})
	if err != nil {
		m.metrics.errors.WithLabelValues("submit").Inc()
		m.record(false)
		return nil, fmt.Errorf("failed to execute flash loan: %w", err)
	}

	m.metrics.submissions.Inc()
	m.logger.Info("Flash loan submitted",
		zap.String("opportunity", opp.ID),
		zap.String("provider", m.provider.String()),
		zap.String("tx", tx.Hash().Hex()),
		zap.String("buy", opp.BuyVenue.Name()),
		zap.String("sell", opp.SellVenue.Name()),
	)
	return tx, nil
}

// Confirm waits for tx, bounded by the confirm timeout, and extracts the
// realized profit. A mined-but-reverted transaction returns both the outcome
// and the error.
func (m *FlashLoanManager) Confirm(ctx context.Context, tx *ethtypes.Transaction) (*types.TradeOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := m.confirmer.WaitMined(ctx, tx)
	m.metrics.latency.Observe(time.Since(start).Seconds())

	outcome := &types.TradeOutcome{TxHash: tx.Hash()}
	if receipt != nil {
		outcome.GasUsed = receipt.GasUsed
		if receipt.BlockNumber != nil {
			outcome.BlockNumber = receipt.BlockNumber.Uint64()
		}
	}

	if err != nil {
		outcome.FailureReason = err.Error()
		label := "reverted"
		if receipt == nil {
			label = "wait_failed"
		}
		if errors.Is(err, context.DeadlineExceeded) {
			label = "timeout"
		}
		m.metrics.confirmations.WithLabelValues(label).Inc()
		m.record(false)
		if receipt == nil {
			return nil, fmt.Errorf("confirmation failed: %w", err)
		}
		return outcome, err
	}

	token, profit, ok := ParseProfit(receipt.Logs, m.cfg.Receiver)
	if ok {
		outcome.Profit = profit
		outcome.ProfitToken = token
		realized, _ := new(big.Float).SetInt(profit).Float64()
		m.metrics.realized.Add(realized)
		m.metrics.confirmations.WithLabelValues("profit").Inc()
	} else {
		m.metrics.confirmations.WithLabelValues("no_profit_event").Inc()
		m.logger.Warn("No profit event in receipt", zap.String("tx", tx.Hash().Hex()))
	}
	m.record(true)

	return outcome, nil
}

func (m *FlashLoanManager) record(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.totalCount.Inc()
	if success {
		m.metrics.successCount.Inc()
	}

	successCount := counterValue(m.metrics.successCount)
	totalCount := counterValue(m.metrics.totalCount)
	if totalCount > 0 {
		m.metrics.successRate.Set(successCount / totalCount)
	}
}

// SuccessRate returns the share of flash loans that were mined successfully.
func (m *FlashLoanManager) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := counterValue(m.metrics.totalCount)
	if total == 0 {
		return 0
	}
	return counterValue(m.metrics.successCount) / total
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}
