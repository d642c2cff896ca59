// Package metrics exposes the core's Prometheus counters/gauges, following
// the teacher's metrics_module.go fx wiring pattern but narrowed to the
// metrics this engine actually emits.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Metrics holds the counters and gauges the aggregator and wire parser
// update on their steady-state path.
type Metrics struct {
	MessagesParsed   prometheus.Counter
	ParseErrors      *prometheus.CounterVec
	DroppedMessages  prometheus.Counter
	MessagesProcessed prometheus.Counter
	AvgLatencyNs     prometheus.Gauge
	MaxLatencyNs     prometheus.Gauge
	QueueDepth       prometheus.Gauge
}

// New registers the core's metric set against registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		MessagesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_parsed_total",
			Help: "Wire frames successfully parsed into typed messages.",
		}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parse_errors_total",
			Help: "Wire frames rejected by the parser, labelled by error kind.",
		}, []string{"kind"}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropped_messages_total",
			Help: "Messages dropped because the ingress ring queue was full.",
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Messages successfully applied to a book by the aggregator.",
		}),
		AvgLatencyNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avg_latency_ns",
			Help: "EMA of receive-to-applied latency across all books, in nanoseconds.",
		}),
		MaxLatencyNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "max_latency_ns",
			Help: "Maximum observed receive-to-applied latency, in nanoseconds.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current occupancy of the ingress ring queue.",
		}),
	}
	registry.MustRegister(
		m.MessagesParsed, m.ParseErrors, m.DroppedMessages, m.MessagesProcessed,
		m.AvgLatencyNs, m.MaxLatencyNs, m.QueueDepth,
	)
	return m
}

// Module wires the metrics registry, the core's Metrics set and the
// /metrics HTTP endpoint into the fx composition root.
var Module = fx.Options(
	fx.Provide(NewRegistry),
	fx.Provide(New),
	fx.Invoke(RegisterHandler),
)

// NewRegistry creates a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// HandlerParams is the fx.In parameter object for RegisterHandler.
type HandlerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Registry  *prometheus.Registry
	Logger    *zap.Logger
	Addr      string `name:"metricsAddr"`
}

// RegisterHandler starts the /metrics HTTP server as an fx lifecycle hook.
func RegisterHandler(p HandlerParams) {
	handler := promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := p.Addr
	if addr == "" {
		addr = ":9090"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Info("starting metrics server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					p.Logger.Error("metrics server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("stopping metrics server")
			return server.Shutdown(ctx)
		},
	})
}
