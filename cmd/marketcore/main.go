// Command marketcore is the process composition root: it wires config,
// logging, the ring queue, book manager, wire parser, aggregator, ingress
// producers, the fan-out broadcaster and the admin HTTP surface together
// with go.uber.org/fx, following the teacher's cmd/marketdata/main.go
// zap.NewProduction + fx.New pattern.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tradsys/marketcore/internal/aggregator"
	"github.com/tradsys/marketcore/internal/bookmgr"
	"github.com/tradsys/marketcore/internal/config"
	"github.com/tradsys/marketcore/internal/feed"
	"github.com/tradsys/marketcore/internal/httpapi"
	"github.com/tradsys/marketcore/internal/ingress"
	"github.com/tradsys/marketcore/internal/metrics"
	"github.com/tradsys/marketcore/internal/queue"
	"github.com/tradsys/marketcore/internal/types"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	app := fx.New(
		fx.Supply(logger, cfg),
		fx.Provide(fx.Annotate(
			func() string { return cfg.Metrics.ListenAddr },
			fx.ResultTags(`name:"metricsAddr"`),
		)),
		metrics.Module,
		fx.Provide(
			newClock,
			newInputQueue,
			newBookManager,
			newAggregator,
			newBroadcaster,
			newHTTPServer,
		),
		fx.Invoke(
			startAggregator,
			startIngressProducers,
			startBroadcaster,
			startHTTPServer,
		),
	)

	app.Run()
}

func newClock() types.Clock {
	return types.NewClock()
}

func newInputQueue(cfg *config.Config) queue.Queue[types.Message] {
	switch cfg.Queue.Mode {
	case "spsc":
		return queue.NewWrapping[types.Message](queue.NewSPSC[types.Message](cfg.Queue.Capacity))
	default:
		return queue.NewWrapping[types.Message](queue.NewMPSC[types.Message](cfg.Queue.Capacity))
	}
}

func newBookManager(cfg *config.Config, clock types.Clock) *bookmgr.Manager {
	staleAfter := time.Duration(cfg.Book.StaleAfterSeconds) * time.Second
	return bookmgr.New(clock, staleAfter)
}

func newAggregator(input queue.Queue[types.Message], books *bookmgr.Manager, m *metrics.Metrics, clock types.Clock, logger *zap.Logger, cfg *config.Config) *aggregator.Aggregator {
	return aggregator.New(input, books, m, clock, logger, cfg.Aggregator.BatchDrainSize)
}

func newBroadcaster(logger *zap.Logger) (*feed.Broadcaster, error) {
	return feed.NewBroadcaster(64, logger)
}

func newHTTPServer(books *bookmgr.Manager, registry *prometheus.Registry, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(books, registry, logger)
}

func startAggregator(lc fx.Lifecycle, agg *aggregator.Aggregator, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go agg.Run()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("stopping aggregator")
			agg.Stop()
			if fatal := agg.Fatal(); fatal != nil {
				logger.Error("aggregator stopped with fatal error", zap.String("incident_id", fatal.IncidentID))
			}
			return nil
		},
	})
}

func startBroadcaster(lc fx.Lifecycle, bc *feed.Broadcaster) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			bc.Close()
			return nil
		},
	})
}

func startIngressProducers(lc fx.Lifecycle, cfg *config.Config, clock types.Clock, input queue.Queue[types.Message], m *metrics.Metrics, logger *zap.Logger) {
	var producers []*ingress.Producer

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for i := 0; i < cfg.Ingress.ProducerCount; i++ {
				name := fmt.Sprintf("producer-%d", i)
				p, err := ingress.NewProducer(name, cfg.Ingress.NATSURL, cfg.Ingress.Subject, clock, cfg.Parser.EnforceChecksum, input, m, logger)
				if err != nil {
					logger.Error("failed to start ingress producer", zap.String("producer", name), zap.Error(err))
					continue
				}
				producers = append(producers, p)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			for _, p := range producers {
				p.Close()
			}
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, server *httpapi.Server, logger *zap.Logger) {
	httpServer := &http.Server{Addr: ":8090", Handler: server.Engine()}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting admin http server", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("admin http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
