// Package bookmgr owns the symbol table of active Books: lookup, creation,
// message dispatch by kind, and stale-symbol eviction backed by a TTL cache
// of last-seen timestamps, grounded on the teacher's order cache pattern
// (internal/orders/service/core.go's patrickmn/go-cache use).
package bookmgr

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/tradsys/marketcore/internal/book"
	tradserrors "github.com/tradsys/marketcore/internal/common/errors"
	"github.com/tradsys/marketcore/internal/statistics"
	"github.com/tradsys/marketcore/internal/types"
)

// Manager holds one Book per active symbol, dispatches inbound Messages to
// the right book, and evicts symbols that have gone quiet.
type Manager struct {
	mu         sync.RWMutex
	books      map[types.Symbol]*book.Book
	clock      types.Clock
	lastSeen   *cache.Cache
	staleAfter time.Duration
}

// New creates a Manager. staleAfter is the default TTL used to size the
// last-seen cache's own expiry sweep; EvictStale still takes its own max_age
// per call and is authoritative regardless of staleAfter.
func New(clock types.Clock, staleAfter time.Duration) *Manager {
	return &Manager{
		books:      make(map[types.Symbol]*book.Book),
		clock:      clock,
		lastSeen:   cache.New(staleAfter, staleAfter/2),
		staleAfter: staleAfter,
	}
}

// GetOrCreate returns the book for symbol, creating an empty one if absent.
func (m *Manager) GetOrCreate(symbol types.Symbol) *book.Book {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[symbol]; ok {
		return b
	}
	b = book.New(symbol)
	m.books[symbol] = b
	return b
}

// Get returns the book for symbol, or ErrSymbolNotFound if none is active.
func (m *Manager) Get(symbol types.Symbol) (*book.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[symbol]
	if !ok {
		return nil, tradserrors.New(tradserrors.ErrSymbolNotFound, "no active book for symbol").
			WithDetail("symbol", symbol.String())
	}
	return b, nil
}

// Remove drops the book for symbol, if present.
func (m *Manager) Remove(symbol types.Symbol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, symbol)
	m.lastSeen.Delete(symbol.String())
}

// ActiveSymbols returns the symbols with a currently tracked book.
func (m *Manager) ActiveSymbols() []types.Symbol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Symbol, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	return out
}

// Apply dispatches msg to the appropriate book operation by Kind, creating
// the book if it does not yet exist.
func (m *Manager) Apply(msg types.Message) error {
	var symbol types.Symbol
	switch msg.Kind {
	case types.MessageTrade:
		symbol = msg.Trade.Symbol
	case types.MessageQuote:
		symbol = msg.Quote.Symbol
	case types.MessageOrderAdd, types.MessageOrderModify, types.MessageOrderDelete:
		symbol = msg.Delta.Symbol
	case types.MessageBookSnapshot:
		symbol = msg.Snapshot.Symbol
	default:
		return nil // heartbeats/statistics carry no book mutation
	}

	b := m.GetOrCreate(symbol)
	now := m.clock.Now()
	m.lastSeen.Set(symbol.String(), now, cache.DefaultExpiration)

	switch msg.Kind {
	case types.MessageTrade:
		b.ApplyTrade(msg.Trade, now)
	case types.MessageQuote:
		b.ApplyQuote(msg.Quote, now)
	case types.MessageOrderAdd:
		b.ApplyAdd(msg.Delta.Price, msg.Delta.Quantity, msg.Delta.Side, msg.Delta.Ts, now)
	case types.MessageOrderModify:
		b.ApplyModify(msg.Delta.OldPrice, msg.Delta.Price, msg.Delta.Quantity, msg.Delta.Side, msg.Delta.Ts, now)
	case types.MessageOrderDelete:
		b.ApplyDelete(msg.Delta.Price, msg.Delta.Quantity, msg.Delta.Side, msg.Delta.Ts, now)
	case types.MessageBookSnapshot:
		b.ApplySnapshot(msg.Snapshot, now)
	}
	return nil
}

// EvictStale removes every book whose last applied update is older than
// now-maxAge, per spec.md's evict_stale(max_age), returning the evicted
// symbols. now comes from the Manager's own calibrated Clock, so eviction
// stays keyed to engine time rather than wall-clock time; LastUpdateNs is
// the authoritative check regardless of maxAge. The go-cache TTL index is
// only trusted as a fast-path skip when the caller's maxAge matches the
// staleAfter the cache was sized with at construction — its internal expiry
// is fixed at that value, so for any other maxAge it is not a valid proxy
// and the authoritative comparison decides alone.
func (m *Manager) EvictStale(maxAge time.Duration) []types.Symbol {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	cutoff := int64(now) - maxAge.Nanoseconds()
	fastPath := maxAge == m.staleAfter

	var evicted []types.Symbol
	for s, b := range m.books {
		if fastPath {
			if _, found := m.lastSeen.Get(s.String()); found {
				continue
			}
		}
		if b.LastUpdateNs() >= cutoff {
			continue
		}
		delete(m.books, s)
		m.lastSeen.Delete(s.String())
		evicted = append(evicted, s)
	}
	return evicted
}

// MarketSummary is one symbol's entry in the consolidated egress view,
// matching spec.md §6's per-symbol shape.
type MarketSummary struct {
	Symbol     string  `json:"symbol"`
	BestBid    float64 `json:"best_bid"`
	BestAsk    float64 `json:"best_ask"`
	Mid        float64 `json:"mid_price"`
	Spread     float64 `json:"spread"`
	Imbalance  float64 `json:"imbalance"`
	Volume     uint64  `json:"volume"`
	TradeCount uint64  `json:"trade_count"`
	Volatility float64 `json:"volatility"`
}

// MarketSummary builds the JSON-ready summary for symbol, or an error if no
// book is active for it.
func (m *Manager) MarketSummary(symbol types.Symbol) (MarketSummary, error) {
	b, err := m.Get(symbol)
	if err != nil {
		return MarketSummary{}, err
	}
	stats := b.GetStatistics()
	return MarketSummary{
		Symbol:     symbol.String(),
		BestBid:    b.BestBid().Display(),
		BestAsk:    b.BestAsk().Display(),
		Mid:        b.MidPrice().Display(),
		Spread:     b.Spread().Display(),
		Imbalance:  b.Imbalance(),
		Volume:     uint64(stats.TotalVolume),
		TradeCount: stats.TradeCount,
		Volatility: b.Volatility(),
	}, nil
}

// Correlation returns the Pearson correlation coefficient between symbolA's
// and symbolB's recent log-return windows, for cross-symbol pairs analysis.
func (m *Manager) Correlation(symbolA, symbolB types.Symbol) (float64, error) {
	a, err := m.Get(symbolA)
	if err != nil {
		return 0, err
	}
	b, err := m.Get(symbolB)
	if err != nil {
		return 0, err
	}

	x, y := a.RecentLogReturns(), b.RecentLogReturns()
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	return statistics.CalculateCorrelation(x[len(x)-n:], y[len(y)-n:])
}

// ConsolidatedSummary is the `market_summary` document spec.md §6 defines:
// total symbol count, total applied updates, and every symbol's summary.
type ConsolidatedSummary struct {
	TotalSymbols int             `json:"total_symbols"`
	TotalUpdates uint64          `json:"total_updates"`
	TimestampMs  uint64          `json:"timestamp"`
	Symbols      []MarketSummary `json:"symbols"`
}

// Consolidated builds the market_summary document at timestampMs.
func (m *Manager) Consolidated(timestampMs uint64) ConsolidatedSummary {
	symbols := m.ActiveSymbols()
	out := ConsolidatedSummary{
		TotalSymbols: len(symbols),
		TimestampMs:  timestampMs,
		Symbols:      make([]MarketSummary, 0, len(symbols)),
	}
	var totalUpdates uint64
	for _, sym := range symbols {
		summary, err := m.MarketSummary(sym)
		if err != nil {
			continue
		}
		out.Symbols = append(out.Symbols, summary)
		if b, err := m.Get(sym); err == nil {
			totalUpdates += b.UpdateCount()
		}
	}
	out.TotalUpdates = totalUpdates
	return out
}
