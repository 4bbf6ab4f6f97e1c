package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registry collects the bot's component metrics and serves them over HTTP.
type Registry struct {
	reg    *prometheus.Registry
	logger *zap.Logger
	uptime prometheus.GaugeFunc
}

// NewRegistry creates a registry preloaded with Go runtime, process and
// uptime collectors.
func NewRegistry(logger *zap.Logger) *Registry {
	started := time.Now()
	r := &Registry{
		reg:    prometheus.NewRegistry(),
		logger: logger.Named("metrics"),
		uptime: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bot_uptime_seconds",
			Help: "Seconds since the bot started",
		}, func() float64 { return time.Since(started).Seconds() }),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.uptime,
	)
	return r
}

// Register adds component collectors. Collectors registered twice are
// ignored.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("Serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
