// Package notify delivers operator messages. Every message is logged locally;
// outbound delivery is best effort and never blocks or fails the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is an outbound notification channel.
type Sender interface {
	Send(ctx context.Context, message string) error
	Name() string
}

type Config struct {
	// QueueSize bounds pending outbound messages; extra messages are dropped
	QueueSize int
	// RequestsPerSecond and Burst pace outbound delivery
	RequestsPerSecond float64
	Burst             int
	// SendTimeout bounds one delivery attempt including the pacing wait
	SendTimeout time.Duration
	// DedupWindow suppresses identical messages seen within the window. Zero
	// disables suppression.
	DedupWindow time.Duration
	DedupSize   int
}

type entry struct {
	msg string
	at  time.Time
}

// Notifier logs and forwards messages to its senders from a single worker.
type Notifier struct {
	senders []Sender
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	dedup   *lru.Cache
	metrics *notifierMetrics

	mu     sync.Mutex
	closed bool
	queue  chan entry
	done   chan struct{}
}

type notifierMetrics struct {
	sent    *prometheus.CounterVec
	failed  *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

// New starts a notifier over senders. With no senders messages are only
// logged.
func New(senders []Sender, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	n := &Notifier{
		senders: senders,
		cfg:     cfg,
		logger:  logger.Named("notify"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		queue:   make(chan entry, cfg.QueueSize),
		done:    make(chan struct{}),
		metrics: &notifierMetrics{
			sent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "notify_sent_total",
				Help: "Messages delivered by sender",
			}, []string{"sender"}),
			failed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "notify_failed_total",
				Help: "Failed deliveries by sender",
			}, []string{"sender"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "notify_dropped_total",
				Help: "Messages not forwarded by reason",
			}, []string{"reason"}),
		},
	}

	if cfg.DedupWindow > 0 {
		size := cfg.DedupSize
		if size <= 0 {
			size = 256
		}
		cache, err := lru.New(size)
		if err != nil {
			return nil, err
		}
		n.dedup = cache
	}

	go n.run()
	return n, nil
}

func (n *Notifier) Collectors() []prometheus.Collector {
	return []prometheus.Collector{n.metrics.sent, n.metrics.failed, n.metrics.dropped}
}

// Notify logs msg and queues it for delivery without blocking.
func (n *Notifier) Notify(msg string) {
	now := time.Now()
	n.logger.Info(msg, zap.Time("at", now))

	if len(n.senders) == 0 {
		return
	}
	if n.duplicate(msg, now) {
		n.metrics.dropped.WithLabelValues("duplicate").Inc()
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.metrics.dropped.WithLabelValues("closed").Inc()
		return
	}
	select {
	case n.queue <- entry{msg: msg, at: now}:
	default:
		n.metrics.dropped.WithLabelValues("queue_full").Inc()
		n.logger.Warn("Notification queue full, dropping message")
	}
}

func (n *Notifier) duplicate(msg string, now time.Time) bool {
	if n.dedup == nil {
		return false
	}
	key := xxhash.Sum64String(msg)
	if v, ok := n.dedup.Get(key); ok {
		if now.Sub(v.(time.Time)) < n.cfg.DedupWindow {
			return true
		}
	}
	n.dedup.Add(key, now)
	return false
}

func (n *Notifier) run() {
	defer close(n.done)
	for e := range n.queue {
		n.deliver(e)
	}
}

func (n *Notifier) deliver(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SendTimeout)
	defer cancel()

	if err := n.limiter.Wait(ctx); err != nil {
		n.metrics.dropped.WithLabelValues("rate_limited").Inc()
		n.logger.Warn("Notification pacing wait failed", zap.Error(err))
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, e.msg); err != nil {
			n.metrics.failed.WithLabelValues(s.Name()).Inc()
			n.logger.Warn("Notification delivery failed",
				zap.String("sender", s.Name()),
				zap.Error(err),
			)
			continue
		}
		n.metrics.sent.WithLabelValues(s.Name()).Inc()
	}
}

// Close stops accepting messages and waits up to timeout for the queue to
// drain.
func (n *Notifier) Close(timeout time.Duration) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-time.After(timeout):
		return errors.New("notify: timed out draining queue")
	}
}
