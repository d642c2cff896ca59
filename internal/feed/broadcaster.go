// Package feed holds the Broadcaster hub that the out-of-scope fan-out
// server would embed: registration/unregistration of subscriber sockets and
// JSON-frame push, fanned out through a bounded goroutine pool. The HTTP
// upgrade route itself is the excluded dashboard server's responsibility;
// this package only owns the hub and the egress JSON shape (spec.md §6).
package feed

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/tradsys/marketcore/internal/book"
	"github.com/tradsys/marketcore/internal/types"
)

// LevelView is one price-level row of the egress JSON shape.
type LevelView struct {
	Price    float64 `json:"price"`
	Quantity uint64  `json:"quantity"`
	Orders   uint32  `json:"orders"`
}

// StatisticsView is the statistics sub-object of the egress JSON shape.
type StatisticsView struct {
	LastPrice          float64 `json:"last_price"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Open               float64 `json:"open"`
	VWAP               float64 `json:"vwap"`
	Volume             uint64  `json:"volume"`
	TradeCount         uint64  `json:"trade_count"`
	Volatility         float64 `json:"volatility"`
	CrossCheckVolatility float64 `json:"cross_check_volatility"`
}

// Snapshot is the consolidated per-symbol egress document in spec.md §6's
// JSON shape, with one extra statistics field, cross_check_volatility.
type Snapshot struct {
	Symbol      string         `json:"symbol"`
	TimestampMs uint64         `json:"timestamp"`
	BestBid     float64        `json:"best_bid"`
	BestAsk     float64        `json:"best_ask"`
	MidPrice    float64        `json:"mid_price"`
	Spread      float64        `json:"spread"`
	WeightedMid float64        `json:"weighted_mid"`
	Imbalance   float64        `json:"imbalance"`
	Bids        []LevelView    `json:"bids"`
	Asks        []LevelView    `json:"asks"`
	Statistics  StatisticsView `json:"statistics"`
}

const maxEgressDepth = 10

// BuildSnapshot converts a Book into its JSON-ready egress Snapshot at
// timestampMs.
func BuildSnapshot(b *book.Book, timestampMs uint64) Snapshot {
	stats := b.GetStatistics()
	bidSz, askSz := topSize(b.TopNBids(1)), topSize(b.TopNAsks(1))

	return Snapshot{
		Symbol:      b.Symbol.String(),
		TimestampMs: timestampMs,
		BestBid:     b.BestBid().Display(),
		BestAsk:     b.BestAsk().Display(),
		MidPrice:    b.MidPrice().Display(),
		Spread:      b.Spread().Display(),
		WeightedMid: b.WeightedMid(bidSz, askSz),
		Imbalance:   b.Imbalance(),
		Bids:        levelViews(b.TopNBids(maxEgressDepth)),
		Asks:        levelViews(b.TopNAsks(maxEgressDepth)),
		Statistics: StatisticsView{
			LastPrice:  stats.LastPrice.Display(),
			High:       stats.High.Display(),
			Low:        stats.Low.Display(),
			Open:       stats.Open.Display(),
			VWAP:       b.VWAP().Display(),
			Volume:               uint64(stats.TotalVolume),
			TradeCount:           stats.TradeCount,
			Volatility:           b.Volatility(),
			CrossCheckVolatility: b.CrossCheckVolatility(),
		},
	}
}

func topSize(levels []book.Level) types.Quantity {
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Quantity
}

func levelViews(levels []book.Level) []LevelView {
	out := make([]LevelView, len(levels))
	for i, lv := range levels {
		out[i] = LevelView{Price: lv.Price.Display(), Quantity: uint64(lv.Quantity), Orders: lv.OrderCount}
	}
	return out
}

// sink receives a pushed Snapshot; wsSink (wrapping a *websocket.Conn) and
// the in-memory MemorySink both satisfy it.
type sink interface {
	pushJSON(payload []byte) error
}

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) pushJSON(payload []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// MemorySink is an in-memory sink used by tests and by any in-process
// subscriber that doesn't need a real socket.
type MemorySink struct {
	mu       sync.Mutex
	Received [][]byte
}

func (s *MemorySink) pushJSON(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Received = append(s.Received, payload)
	return nil
}

// Broadcaster fans a consolidated Snapshot out to every registered sink
// through a bounded ants pool, so Publish never spawns an unbounded number
// of goroutines per call.
type Broadcaster struct {
	mu     sync.RWMutex
	sinks  map[string]sink
	pool   *ants.Pool
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster whose fan-out pool is bounded to
// poolSize concurrent pushes.
func NewBroadcaster(poolSize int, logger *zap.Logger) (*Broadcaster, error) {
	pool, err := ants.NewPool(poolSize, ants.WithPreAlloc(true), ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Broadcaster{sinks: make(map[string]sink), pool: pool, logger: logger}, nil
}

// Close releases the fan-out pool.
func (b *Broadcaster) Close() {
	b.pool.Release()
}

// RegisterConn registers a live websocket connection under id.
func (b *Broadcaster) RegisterConn(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[id] = &wsSink{conn: conn}
}

// RegisterSink registers an in-memory MemorySink (e.g. in tests) under id.
func (b *Broadcaster) RegisterSink(id string, s *MemorySink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[id] = s
}

// Unregister removes the subscriber registered under id.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, id)
}

// SubscriberCount returns the current number of registered sinks.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sinks)
}

// Publish marshals snap and pushes it to every registered sink concurrently
// through the bounded pool.
func (b *Broadcaster) Publish(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	b.mu.RLock()
	targets := make([]sink, 0, len(b.sinks))
	for _, s := range b.sinks {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range targets {
		s := s
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			if pushErr := s.pushJSON(payload); pushErr != nil && b.logger != nil {
				b.logger.Warn("feed: failed to push snapshot to subscriber", zap.Error(pushErr))
			}
		})
		if err != nil {
			wg.Done()
			if b.logger != nil {
				b.logger.Warn("feed: pool submit failed", zap.Error(err))
			}
		}
	}
	wg.Wait()
	return nil
}
