package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metuDein/aaveflashbot/dex"
	"github.com/metuDein/aaveflashbot/types"
	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

// ErrQuoteFailed wraps any venue error raised while quoting.
var ErrQuoteFailed = errors.New("venue quote failed")

// Config holds the evaluator thresholds. MinProfit is in base-token units.
type Config struct {
	BaseToken       common.Address
	QuoteToken      common.Address
	BaseDecimals    uint8
	MinSpreadBps    uint32
	FlashLoanFeeBps uint32
	MinProfit       *big.Int
	QuoteTimeout    time.Duration
}

// Quotes are the two venue outputs for the same input.
type Quotes struct {
	Notional *big.Int
	OutputA  *big.Int
	OutputB  *big.Int
}

// Evaluator compares two venues for the same swap and accepts the trade only
// when both the spread and the net profit clear their thresholds.
type Evaluator struct {
	venueA  dex.Venue
	venueB  dex.Venue
	cfg     Config
	logger  *zap.Logger
	metrics *evaluatorMetrics
}

type evaluatorMetrics struct {
	evaluations  *prometheus.CounterVec
	quoteLatency *prometheus.HistogramVec
	lastSpread   prometheus.Gauge
}

// NewEvaluator creates an evaluator over venueA and venueB.
func NewEvaluator(venueA, venueB dex.Venue, cfg Config, logger *zap.Logger) *Evaluator {
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}

	return &Evaluator{
		venueA: venueA,
		venueB: venueB,
		cfg:    cfg,
		logger: logger.Named("evaluator"),
		metrics: &evaluatorMetrics{
			evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "arbitrage_evaluations_total",
				Help: "Opportunity evaluations by result",
			}, []string{"result"}),
			quoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "arbitrage_quote_duration_seconds",
				Help:    "Venue quote latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"venue"}),
			lastSpread: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "arbitrage_last_spread_bps",
				Help: "Spread between the venues at the last evaluation, in bps of notional",
			}),
		},
	}
}

func (e *Evaluator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		e.metrics.evaluations,
		e.metrics.quoteLatency,
		e.metrics.lastSpread,
	}
}

// Evaluate quotes both venues and returns an opportunity, or nil when the
// thresholds are not met. Quote failures return an error wrapping
// ErrQuoteFailed.
func (e *Evaluator) Evaluate(ctx context.Context, notional *big.Int) (*types.Opportunity, error) {
	quotes, err := e.Quote(ctx, notional)
	if err != nil {
		e.metrics.evaluations.WithLabelValues("error").Inc()
		return nil, err
	}
	return e.Assess(quotes), nil
}

// Quote fetches both venue outputs concurrently, bounded by the quote timeout.
func (e *Evaluator) Quote(ctx context.Context, notional *big.Int) (*Quotes, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	quotes := &Quotes{Notional: notional}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := e.quoteVenue(gctx, e.venueA, notional)
		quotes.OutputA = out
		return err
	})
	g.Go(func() error {
		out, err := e.quoteVenue(gctx, e.venueB, notional)
		quotes.OutputB = out
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("Venue quotes",
		zap.String("notional", notional.String()),
		zap.String(e.venueA.Name(), quotes.OutputA.String()),
		zap.String(e.venueB.Name(), quotes.OutputB.String()),
	)
	return quotes, nil
}

func (e *Evaluator) quoteVenue(ctx context.Context, venue dex.Venue, notional *big.Int) (*big.Int, error) {
	start := time.Now()
	out, err := venue.Quote(ctx, notional, e.cfg.BaseToken, e.cfg.QuoteToken)
	e.metrics.quoteLatency.WithLabelValues(venue.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		e.logger.Warn("Quote failed", zap.String("venue", venue.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrQuoteFailed, venue.Name(), err)
	}
	return out, nil
}

// Assess applies the spread and profit thresholds to a pair of quotes. The
// venue with the larger output is the sell side; ties buy on venue A.
func (e *Evaluator) Assess(q *Quotes) *types.Opportunity {
	notional := q.Notional
	spread := mathutil.AbsDiff(q.OutputA, q.OutputB)
	if notional.Sign() > 0 {
		bps := new(big.Int).Mul(spread, big.NewInt(mathutil.BpsDenominator))
		bps.Quo(bps, notional)
		e.metrics.lastSpread.Set(float64(bps.Int64()))
	}

	minSpread := mathutil.MulBps(notional, e.cfg.MinSpreadBps)
	if spread.Cmp(minSpread) < 0 {
		e.metrics.evaluations.WithLabelValues("no_spread").Inc()
		e.logger.Debug("Spread below threshold",
			zap.String("spread", spread.String()),
			zap.String("min_spread", minSpread.String()),
		)
		return nil
	}

	buyVenue, sellVenue := e.venueA, e.venueB
	buyOut, sellOut := q.OutputA, q.OutputB
	if q.OutputA.Cmp(q.OutputB) > 0 {
		buyVenue, sellVenue = e.venueB, e.venueA
		buyOut, sellOut = q.OutputB, q.OutputA
	}

	profit := e.Profit(notional, buyOut, sellOut)
	if profit.Cmp(e.cfg.MinProfit) < 0 {
		e.metrics.evaluations.WithLabelValues("unprofitable").Inc()
		e.logger.Debug("Profit below threshold",
			zap.String("profit", profit.String()),
			zap.String("min_profit", e.cfg.MinProfit.String()),
		)
		return nil
	}

	e.metrics.evaluations.WithLabelValues("accepted").Inc()
	return &types.Opportunity{
		ID:         uuid.NewString(),
		Amount:     new(big.Int).Set(notional),
		BaseToken:  e.cfg.BaseToken,
		QuoteToken: e.cfg.QuoteToken,
		BuyVenue:   buyVenue,
		SellVenue:  sellVenue,
		BuyOutput:  buyOut,
		SellOutput: sellOut,
		Spread:     spread,
		Profit:     profit,
		DetectedAt: time.Now(),
	}
}

// Profit is sell*buy/unit - notional - flash loan fee, in base units. It can
// be negative.
func (e *Evaluator) Profit(notional, buyOut, sellOut *big.Int) *big.Int {
	expected := new(big.Int).Mul(sellOut, buyOut)
	expected.Quo(expected, mathutil.UnitScale(e.cfg.BaseDecimals))
	expected.Sub(expected, notional)
	return expected.Sub(expected, mathutil.MulBps(notional, e.cfg.FlashLoanFeeBps))
}

// Venues returns venue A and venue B in configuration order.
func (e *Evaluator) Venues() (dex.Venue, dex.Venue) {
	return e.venueA, e.venueB
}
