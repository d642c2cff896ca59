// Package book implements the per-symbol limit order book: price-sorted
// bid/ask levels with O(log n) mutation, O(1) best-price readout via an
// atomically cached pair, and the rolling statistics in stats.go.
//
// Grounded on the teacher's HFTOrderBook (internal/orders/matching/
// hft_types.go, hft_processors.go): the atomic best-price cache and
// lock-free top-of-book fast path follow that shape directly, generalized
// from order-level matching (out of scope per spec.md's Non-goals) to the
// aggregate-level add/modify/delete/trade/quote/snapshot operations
// spec.md §4.2 defines.
package book

import (
	"sync"
	"sync/atomic"

	"github.com/tradsys/marketcore/internal/types"
)

// State is the book's observable lifecycle state.
type State uint8

const (
	// StateEmpty is the initial state: no active levels on either side.
	StateEmpty State = iota
	// StateActive means at least one side holds a non-zero level.
	StateActive
)

// side is one bid or ask ledger: an AVL tree of levels plus the atomically
// cached best price for lock-free top-of-book reads.
type side struct {
	mu   sync.RWMutex
	tree priceLevelTree
	best atomic.Int64 // cached best price, 0 when the side is empty
}

// Book is one symbol's aggregated order book and its rolling statistics.
// Only the owning aggregator goroutine mutates a Book; readers (e.g. the
// fan-out feed) use the getters below, which either read the lock-free
// best-price cache or take the side's read lock for multi-field reads.
type Book struct {
	Symbol types.Symbol

	bids side
	asks side

	statsMu sync.RWMutex
	stats   *Statistics

	state atomic.Uint32 // State

	updateCount   atomic.Uint64
	latencySumNs  atomic.Uint64
	latencySample atomic.Uint64

	lastUpdateNs atomic.Int64
}

// New creates an empty book for symbol.
func New(symbol types.Symbol) *Book {
	b := &Book{Symbol: symbol, stats: NewStatistics()}
	b.state.Store(uint32(StateEmpty))
	return b
}

func (b *Book) recordLatency(ts types.Timestamp, now types.Timestamp) {
	b.lastUpdateNs.Store(int64(now))
	if now < ts {
		return
	}
	sample := uint64(now - ts)
	b.latencySumNs.Add(sample)
	b.updateCount.Add(1)
	b.latencySample.Store(sample)
}

func (b *Book) refreshBid() {
	b.bids.mu.RLock()
	n := b.bids.tree.max()
	b.bids.mu.RUnlock()
	if n == nil {
		b.bids.best.Store(0)
		return
	}
	b.bids.best.Store(int64(n.price))
}

func (b *Book) refreshAsk() {
	b.asks.mu.RLock()
	n := b.asks.tree.min()
	b.asks.mu.RUnlock()
	if n == nil {
		b.asks.best.Store(0)
		return
	}
	b.asks.best.Store(int64(n.price))
}

func (b *Book) refreshState() {
	b.bids.mu.RLock()
	bidsEmpty := b.bids.tree.root == nil
	b.bids.mu.RUnlock()
	b.asks.mu.RLock()
	asksEmpty := b.asks.tree.root == nil
	b.asks.mu.RUnlock()

	if bidsEmpty && asksEmpty {
		b.state.Store(uint32(StateEmpty))
	} else {
		b.state.Store(uint32(StateActive))
	}
}

// State returns the book's current lifecycle state.
func (b *Book) State() State {
	return State(b.state.Load())
}

func sideApplyAdd(s *side, price types.Price, qty types.Quantity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.tree.upsert(price)
	n.level.Price = price
	n.level.Quantity += qty
	n.level.OrderCount++
}

func sideApplyDelete(s *side, price types.Price, qty types.Quantity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.tree.find(price)
	if n == nil {
		return // LookupMiss: silently ignored, upstream resyncs via snapshot
	}
	if qty >= n.level.Quantity {
		s.tree.delete(price)
		return
	}
	n.level.Quantity -= qty
	if n.level.OrderCount > 1 {
		n.level.OrderCount--
	}
	if n.level.Quantity == 0 {
		s.tree.delete(price)
	}
}

func sideReplace(s *side, levels []types.SnapshotLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = priceLevelTree{}
	for _, lv := range levels {
		if lv.Quantity == 0 {
			continue
		}
		n := s.tree.upsert(lv.Price)
		n.level.Price = lv.Price
		n.level.Quantity = lv.Quantity
		if lv.Orders > 0 {
			n.level.OrderCount = lv.Orders
		} else {
			n.level.OrderCount = 1
		}
	}
}

// ApplyAdd increases the level at price by qty on side, creating it if
// absent, and refreshes the best-price cache.
func (b *Book) ApplyAdd(price types.Price, qty types.Quantity, sd types.Side, ts types.Timestamp, now types.Timestamp) {
	if sd == types.SideBuy {
		sideApplyAdd(&b.bids, price, qty)
		b.refreshBid()
	} else {
		sideApplyAdd(&b.asks, price, qty)
		b.refreshAsk()
	}
	b.refreshState()
	b.recordLatency(ts, now)
}

// ApplyModify reduces the old level by newQty (the upstream protocol's
// literal, intentionally coarse semantics — see spec.md §9 Open Questions:
// this decrements the *old* level rather than replacing it), then applies
// an add of newQty at newPrice.
func (b *Book) ApplyModify(oldPrice, newPrice types.Price, newQty types.Quantity, sd types.Side, ts types.Timestamp, now types.Timestamp) {
	if sd == types.SideBuy {
		sideApplyDelete(&b.bids, oldPrice, newQty)
	} else {
		sideApplyDelete(&b.asks, oldPrice, newQty)
	}
	b.ApplyAdd(newPrice, newQty, sd, ts, now)
}

// ApplyDelete subtracts qty from the level at price, saturating at zero and
// removing the level if it empties.
func (b *Book) ApplyDelete(price types.Price, qty types.Quantity, sd types.Side, ts types.Timestamp, now types.Timestamp) {
	if sd == types.SideBuy {
		sideApplyDelete(&b.bids, price, qty)
		b.refreshBid()
	} else {
		sideApplyDelete(&b.asks, price, qty)
		b.refreshAsk()
	}
	b.refreshState()
	b.recordLatency(ts, now)
}

// ApplyTrade updates statistics only; the book levels are untouched.
func (b *Book) ApplyTrade(trade types.Trade, now types.Timestamp) {
	b.statsMu.Lock()
	b.stats.ApplyTrade(trade.Price, trade.Quantity, trade.Ts)
	b.statsMu.Unlock()
	b.recordLatency(trade.Ts, now)
}

// ApplyQuote replaces top-of-book: clears both sides and inserts the
// quoted level on each.
func (b *Book) ApplyQuote(q types.Quote, now types.Timestamp) {
	bidLevels := []types.SnapshotLevel{}
	if q.BidSz > 0 {
		bidLevels = append(bidLevels, types.SnapshotLevel{Price: q.BidPx, Quantity: q.BidSz, Orders: 1})
	}
	askLevels := []types.SnapshotLevel{}
	if q.AskSz > 0 {
		askLevels = append(askLevels, types.SnapshotLevel{Price: q.AskPx, Quantity: q.AskSz, Orders: 1})
	}
	sideReplace(&b.bids, bidLevels)
	sideReplace(&b.asks, askLevels)
	b.refreshBid()
	b.refreshAsk()
	b.refreshState()
	b.recordLatency(q.Ts, now)
}

// ApplySnapshot fully replaces both sides, keeping only levels with
// quantity > 0.
func (b *Book) ApplySnapshot(snap types.Snapshot, now types.Timestamp) {
	sideReplace(&b.bids, snap.Bids)
	sideReplace(&b.asks, snap.Asks)
	b.refreshBid()
	b.refreshAsk()
	b.refreshState()
	b.recordLatency(snap.Ts, now)
}

// BestBid returns the cached best bid price, 0 if no bids.
func (b *Book) BestBid() types.Price { return types.Price(b.bids.best.Load()) }

// BestAsk returns the cached best ask price, 0 if no asks.
func (b *Book) BestAsk() types.Price { return types.Price(b.asks.best.Load()) }

// MidPrice returns (best_bid+best_ask)/2, or 0 if either side is empty.
func (b *Book) MidPrice() types.Price {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns best_ask-best_bid, or 0 if either side is empty.
func (b *Book) Spread() types.Price {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// depthWindow is the number of top levels considered for Imbalance.
const depthWindow = 5

// Imbalance returns the normalised bid/ask size difference over the top-5
// levels on each side, in [-1, 1]; 0 when both sums are zero.
func (b *Book) Imbalance() float64 {
	b.bids.mu.RLock()
	bidQty := b.bids.tree.sumTopN(depthWindow, false)
	b.bids.mu.RUnlock()
	b.asks.mu.RLock()
	askQty := b.asks.tree.sumTopN(depthWindow, true)
	b.asks.mu.RUnlock()

	total := bidQty + askQty
	if total == 0 {
		return 0
	}
	return (float64(bidQty) - float64(askQty)) / float64(total)
}

// WeightedMid returns the size-weighted mid in display units, reverting to
// MidPrice's display value when either top-of-book size is 0.
func (b *Book) WeightedMid(bidSz, askSz types.Quantity) float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	if bidSz == 0 || askSz == 0 {
		return b.MidPrice().Display()
	}
	num := bid.Display()*float64(askSz) + ask.Display()*float64(bidSz)
	den := float64(bidSz + askSz)
	return num / den
}

// TopNBids returns up to n bid levels, descending by price.
func (b *Book) TopNBids(n int) []Level {
	b.bids.mu.RLock()
	defer b.bids.mu.RUnlock()
	return b.bids.tree.topDescending(n, make([]Level, 0, n))
}

// TopNAsks returns up to n ask levels, ascending by price.
func (b *Book) TopNAsks(n int) []Level {
	b.asks.mu.RLock()
	defer b.asks.mu.RUnlock()
	return b.asks.tree.topAscending(n, make([]Level, 0, n))
}

// GetStatistics returns a copy of the current rolling statistics.
func (b *Book) GetStatistics() Statistics {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	s := *b.stats
	// Statistics has no VWAP field: VWAP is derived from an unexported
	// accumulator on read, so callers use Book.VWAP for it.
	return s
}

// VWAP returns the current volume-weighted average price.
func (b *Book) VWAP() types.Price {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats.VWAP()
}

// Volatility returns the current Parkinson volatility estimate.
func (b *Book) Volatility() float64 {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats.Volatility()
}

// CrossCheckVolatility returns the gonum-backed log-return standard
// deviation estimate, an independent cross-check against Volatility's
// Parkinson range estimate.
func (b *Book) CrossCheckVolatility() float64 {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats.CrossCheckVolatility()
}

// RecentLogReturns returns the book's rolling log-return window, used for
// cross-symbol correlation analysis.
func (b *Book) RecentLogReturns() []float64 {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats.RecentLogReturns()
}

// AverageUpdateLatencyNs returns the mean age (receive-to-applied) of
// updates applied to this book so far.
func (b *Book) AverageUpdateLatencyNs() uint64 {
	count := b.updateCount.Load()
	if count == 0 {
		return 0
	}
	return b.latencySumNs.Load() / count
}

// UpdateCount returns the number of updates applied to this book so far.
func (b *Book) UpdateCount() uint64 {
	return b.updateCount.Load()
}

// LastUpdateNs returns the engine timestamp (ns) of the most recent applied
// update, used by BookManager.EvictStale.
func (b *Book) LastUpdateNs() int64 {
	return b.lastUpdateNs.Load()
}
