package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/collecta/internal/config"
	"github.com/smallbiznis/collecta/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Invoke(ensureSchedulerMetrics),
)

func ensureSchedulerMetrics(cfg config.Config) {
	metrics.SchedulerWithConfig(metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}

// RegisterInstrumentation exposes the Prometheus registry over HTTP for
// scraping. Only the daemon invokes it; the one-shot CLI has no
// listener.
func RegisterInstrumentation(lc fx.Lifecycle, cfg config.Config) {
	http.Handle("/metrics", promhttp.Handler())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				_ = http.ListenAndServe(cfg.MetricsAddr, nil)
			}()
			return nil
		},
	})
}
