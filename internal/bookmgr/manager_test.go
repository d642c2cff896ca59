package bookmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys/marketcore/internal/common/errors"
	"github.com/tradsys/marketcore/internal/types"
)

func TestManagerGetOrCreateAndDispatch(t *testing.T) {
	m := New(types.NewClock(), time.Minute)
	sym := types.SymbolFromString("AAPL")

	err := m.Apply(types.Message{
		Kind:  types.MessageOrderAdd,
		Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(1500000), Quantity: 10},
	})
	require.NoError(t, err)

	b, err := m.Get(sym)
	require.NoError(t, err)
	assert.Equal(t, types.Price(1500000), b.BestBid())
}

func TestManagerGetMissingSymbol(t *testing.T) {
	m := New(types.NewClock(), time.Minute)
	_, err := m.Get(types.SymbolFromString("NOPE"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrSymbolNotFound, errors.Code(err))
}

func TestManagerActiveSymbolsAndRemove(t *testing.T) {
	m := New(types.NewClock(), time.Minute)
	sym := types.SymbolFromString("MSFT")
	m.GetOrCreate(sym)

	assert.Len(t, m.ActiveSymbols(), 1)
	m.Remove(sym)
	assert.Empty(t, m.ActiveSymbols())
}

func TestManagerEvictStale(t *testing.T) {
	m := New(types.NewClock(), 10*time.Millisecond)
	sym := types.SymbolFromString("TSLA")
	m.Apply(types.Message{
		Kind:  types.MessageOrderAdd,
		Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(1), Quantity: 1},
	})

	time.Sleep(30 * time.Millisecond)
	evicted := m.EvictStale(10 * time.Millisecond)
	require.Len(t, evicted, 1)
	assert.Equal(t, sym, evicted[0])
	assert.Empty(t, m.ActiveSymbols())
}

func TestManagerEvictStaleRespectsPerCallMaxAge(t *testing.T) {
	m := New(types.NewClock(), time.Hour)
	sym := types.SymbolFromString("NFLX")
	m.Apply(types.Message{
		Kind:  types.MessageOrderAdd,
		Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(1), Quantity: 1},
	})

	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, m.EvictStale(time.Hour), "a one-hour max_age should not evict a book updated 20ms ago")
	evicted := m.EvictStale(10 * time.Millisecond)
	require.Len(t, evicted, 1)
	assert.Equal(t, sym, evicted[0])
}

func TestManagerMarketSummary(t *testing.T) {
	m := New(types.NewClock(), time.Minute)
	sym := types.SymbolFromString("GOOG")
	m.Apply(types.Message{Kind: types.MessageQuote, Quote: types.Quote{
		Symbol: sym,
		BidPx:  types.Price(1000000), AskPx: types.Price(1001000),
		BidSz: 10, AskSz: 20,
	}})

	summary, err := m.MarketSummary(sym)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.BestBid)
	assert.Equal(t, 100.1, summary.BestAsk)
}

func TestManagerCorrelationRequiresBothSymbolsActive(t *testing.T) {
	m := New(types.NewClock(), time.Minute)
	m.GetOrCreate(types.SymbolFromString("AAPL"))

	_, err := m.Correlation(types.SymbolFromString("AAPL"), types.SymbolFromString("MSFT"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrSymbolNotFound, errors.Code(err))
}
