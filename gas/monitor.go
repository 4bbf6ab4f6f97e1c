package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

// FeeSource reports the current network fee level in wei.
type FeeSource interface {
	FeeLevel(ctx context.Context) (*big.Int, error)
}

// Notifier receives operator messages.
type Notifier interface {
	Notify(msg string)
}

// MonitorConfig tunes the polling behaviour.
type MonitorConfig struct {
	PollInterval time.Duration
	Window       int
	FallbackGwei float64
	NotifyEvery  int
}

// Monitor polls the fee source and decides when fees are low enough to trade.
// The sample history and counter live for the lifetime of the Monitor.
type Monitor struct {
	source   FeeSource
	notifier Notifier
	logger   *zap.Logger
	cfg      MonitorConfig
	metrics  *monitorMetrics

	mu      sync.Mutex
	history *ring
	samples int
}

type monitorMetrics struct {
	current   prometheus.Gauge
	average   prometheus.Gauge
	samples   prometheus.Counter
	fallbacks prometheus.Counter
	waits     *prometheus.CounterVec
}

// NewMonitor creates a fee monitor. Zero config fields take the defaults
// (15s poll, window 5, 30 gwei fallback, notify every 3rd sample).
func NewMonitor(source FeeSource, notifier Notifier, cfg MonitorConfig, logger *zap.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 5
	}
	if cfg.FallbackGwei <= 0 {
		cfg.FallbackGwei = 30
	}
	if cfg.NotifyEvery <= 0 {
		cfg.NotifyEvery = 3
	}

	return &Monitor{
		source:   source,
		notifier: notifier,
		logger:   logger.Named("gas"),
		cfg:      cfg,
		history:  newRing(cfg.Window),
		metrics: &monitorMetrics{
			current: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gas_monitor_current_gwei",
				Help: "Most recent fee sample in gwei",
			}),
			average: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gas_monitor_average_gwei",
				Help: "Rolling average of the retained fee samples in gwei",
			}),
			samples: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gas_monitor_samples_total",
				Help: "Total number of fee samples taken",
			}),
			fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gas_monitor_fallbacks_total",
				Help: "Fee samples replaced by the fallback value",
			}),
			waits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gas_monitor_waits_total",
				Help: "Completed fee waits by result",
			}, []string{"result"}),
		},
	}
}

// Collectors returns the monitor's metrics for registration.
func (m *Monitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.metrics.current,
		m.metrics.average,
		m.metrics.samples,
		m.metrics.fallbacks,
		m.metrics.waits,
	}
}

// WaitForAcceptableFee polls until the rolling average is at or below
// targetGwei, returning true, or until maxWait elapses or ctx is done,
// returning false. At least one sample is always taken, and no fee read
// outlives maxWait.
func (m *Monitor) WaitForAcceptableFee(ctx context.Context, targetGwei float64, maxWait time.Duration) bool {
	m.notifier.Notify(fmt.Sprintf("⏳ Starting gas monitoring (Target: %s gwei)", formatGwei(targetGwei)))
	deadline := time.Now().Add(maxWait)
	sctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		// A fee read still pending at the deadline is abandoned for the fallback.
		current, avg, n := m.sample(sctx)

		m.logger.Debug("Fee sample",
			zap.Float64("current_gwei", current),
			zap.Float64("average_gwei", avg),
			zap.Float64("target_gwei", targetGwei),
		)
		if n%m.cfg.NotifyEvery == 0 {
			m.notifier.Notify(fmt.Sprintf("⛽ Current gas: %s gwei | Avg: %s gwei | Target: %s gwei",
				formatGwei(current), formatGwei(avg), formatGwei(targetGwei)))
		}

		if avg <= targetGwei {
			m.metrics.waits.WithLabelValues("ok").Inc()
			m.notifier.Notify("✅ Optimal gas conditions met")
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if remaining > m.cfg.PollInterval {
			remaining = m.cfg.PollInterval
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.metrics.waits.WithLabelValues("cancelled").Inc()
			m.logger.Info("Fee wait cancelled", zap.Error(ctx.Err()))
			return false
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			break
		}
	}

	m.metrics.waits.WithLabelValues("timeout").Inc()
	m.notifier.Notify("❌ Timeout waiting for optimal gas")
	return false
}

// sample records one fee reading and returns it with the new average and the
// running sample count.
func (m *Monitor) sample(ctx context.Context) (float64, float64, int) {
	current := m.cfg.FallbackGwei
	fee, err := m.source.FeeLevel(ctx)
	if err != nil {
		m.metrics.fallbacks.Inc()
		m.logger.Warn("Failed to fetch fee level, using fallback",
			zap.Error(err),
			zap.Float64("fallback_gwei", m.cfg.FallbackGwei),
		)
		m.notifier.Notify("⚠️ Error fetching gas price, using fallback")
	} else {
		current = mathutil.WeiToGwei(fee)
	}

	m.mu.Lock()
	m.history.push(current)
	m.samples++
	avg, n := m.history.average(), m.samples
	m.mu.Unlock()

	m.metrics.samples.Inc()
	m.metrics.current.Set(current)
	m.metrics.average.Set(avg)
	return current, avg, n
}

// Average returns the rolling average of the retained samples.
func (m *Monitor) Average() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.average()
}

// Samples returns how many samples have been taken since creation.
func (m *Monitor) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}

func formatGwei(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
