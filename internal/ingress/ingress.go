// Package ingress is the producer side of the pipeline: one NATS
// subscription per logical producer, each parsing raw tag-value frames and
// pushing the resulting typed Message into the shared MPSC ring, guarded by
// a circuit breaker that opens on sustained queue-full drops.
package ingress

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	tradserrors "github.com/tradsys/marketcore/internal/common/errors"
	"github.com/tradsys/marketcore/internal/metrics"
	"github.com/tradsys/marketcore/internal/queue"
	"github.com/tradsys/marketcore/internal/types"
	"github.com/tradsys/marketcore/internal/wire"
)

// breakerSettings mirrors the teacher's DefaultSettings
// (internal/architecture/fx/resilience/circuit_breaker.go): trip after 10+
// requests with a failure ratio >= 0.5, a 60s open-state timeout.
func breakerSettings(name string, logger *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ingress: circuit breaker state changed",
				zap.String("producer", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
}

// Producer subscribes to one NATS subject, parses every received frame and
// pushes the resulting Message into the shared output queue.
type Producer struct {
	name    string
	sub     *nats.Subscription
	conn    *nats.Conn
	parser  *wire.Parser
	output  queue.Queue[types.Message]
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewProducer connects to natsURL and subscribes to subject under name,
// pushing parsed messages into output.
func NewProducer(name, natsURL, subject string, clock types.Clock, strictChecksum bool, output queue.Queue[types.Message], m *metrics.Metrics, logger *zap.Logger) (*Producer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}

	parser, err := wire.NewParser(clock, strictChecksum)
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &Producer{
		name:    name,
		conn:    conn,
		parser:  parser,
		output:  output,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings(name, logger)),
		metrics: m,
		logger:  logger,
	}

	sub, err := conn.Subscribe(subject, p.handle)
	if err != nil {
		parser.Close()
		conn.Close()
		return nil, err
	}
	p.sub = sub
	return p, nil
}

// handle is the NATS message callback: decompress if needed, parse, convert, push.
func (p *Producer) handle(msg *nats.Msg) {
	receiveTs := p.parser.Clock().Now()

	data := msg.Data
	if wire.IsCompressed(data) {
		decompressed, err := p.parser.Decompress(data)
		if err != nil {
			p.metrics.ParseErrors.WithLabelValues(string(tradserrors.ErrParseMalformedFrame)).Inc()
			return
		}
		data = decompressed
	}

	frame, err := p.parser.Parse(data, receiveTs)
	if err != nil {
		p.metrics.ParseErrors.WithLabelValues(string(tradserrors.Code(err))).Inc()
		return
	}
	p.metrics.MessagesParsed.Inc()

	parsed, err := p.parser.ToMessage(frame)
	if err != nil {
		p.metrics.ParseErrors.WithLabelValues(string(tradserrors.Code(err))).Inc()
		return
	}

	_, _ = p.breaker.Execute(func() (interface{}, error) {
		if !p.output.TryPush(parsed) {
			p.metrics.DroppedMessages.Inc()
			return nil, tradserrors.New(tradserrors.ErrQueueFull, "ingress: output queue full").
				WithDetail("producer", p.name)
		}
		return nil, nil
	})
}

// Close unsubscribes and releases the NATS connection and parser.
func (p *Producer) Close() {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	p.parser.Close()
	p.conn.Close()
}
