package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/coordinator"
)

// Runner executes one trade cycle.
type Runner interface {
	Run(ctx context.Context) *coordinator.CycleReport
}

// Bot drives the coordinator on a fixed interval. At most one cycle runs at
// a time; ticks that arrive while a cycle is in flight are skipped.
type Bot struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	metrics  *botMetrics

	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	fatal   chan error
	mu      sync.Mutex
}

type botMetrics struct {
	ticks   prometheus.Counter
	skipped prometheus.Counter
	panics  prometheus.Counter
}

// New creates a scheduler for runner.
func New(runner Runner, interval time.Duration, logger *zap.Logger) (*Bot, error) {
	if runner == nil {
		return nil, errors.New("bot: runner is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("bot: invalid cycle interval %s", interval)
	}

	return &Bot{
		runner:   runner,
		interval: interval,
		logger:   logger.Named("bot"),
		fatal:    make(chan error, 1),
		metrics: &botMetrics{
			ticks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bot_ticks_total",
				Help: "Scheduler ticks",
			}),
			skipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bot_ticks_skipped_total",
				Help: "Ticks skipped because a cycle was still running",
			}),
			panics: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bot_cycle_panics_total",
				Help: "Cycles that ended in a recovered panic",
			}),
		},
	}, nil
}

func (b *Bot) Collectors() []prometheus.Collector {
	return []prometheus.Collector{b.metrics.ticks, b.metrics.skipped, b.metrics.panics}
}

// Fatal delivers the first unrecoverable cycle failure.
func (b *Bot) Fatal() <-chan error {
	return b.fatal
}

// Start runs the first cycle immediately and then one per interval until ctx
// is cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("bot: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.logger.Info("Starting arbitrage loop", zap.Duration("interval", b.interval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		b.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.tick(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to return.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()

	b.logger.Info("Stopping arbitrage loop...")
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

func (b *Bot) tick(ctx context.Context) {
	b.metrics.ticks.Inc()
	if !b.running.CompareAndSwap(false, true) {
		b.metrics.skipped.Inc()
		b.logger.Info("Previous cycle still running, skipping tick")
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				b.metrics.panics.Inc()
				b.logger.Error("Cycle panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				select {
				case b.fatal <- fmt.Errorf("cycle panicked: %v", r):
				default:
				}
			}
		}()

		report := b.runner.Run(ctx)
		if report != nil {
			b.logger.Debug("Cycle report",
				zap.String("cycle", report.ID),
				zap.String("state", report.Final().String()),
			)
		}
	}()
}
