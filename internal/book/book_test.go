package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys/marketcore/internal/types"
)

func px(s string) types.Price {
	p, err := types.ParsePriceASCII([]byte(s))
	if err != nil {
		panic(err)
	}
	return p
}

func sym(s string) types.Symbol {
	return types.SymbolFromString(s)
}

func TestBookBidAskEstablishment(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)

	b.ApplyAdd(px("150.00"), 100, types.SideBuy, 0, now)
	b.ApplyAdd(px("150.02"), 100, types.SideSell, 0, now)

	assert.Equal(t, StateActive, b.State())
	assert.Equal(t, px("150.00"), b.BestBid())
	assert.Equal(t, px("150.02"), b.BestAsk())
	assert.Equal(t, px("150.01"), b.MidPrice())
	assert.Equal(t, px("0.02"), b.Spread())

	wm := b.WeightedMid(100, 300)
	want := (150.00*300 + 150.02*100) / 400
	assert.InDelta(t, want, wm, 1e-9)
}

func TestBookTradeUpdatesStatsNotLevels(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)
	b.ApplyAdd(px("150.00"), 100, types.SideBuy, 0, now)
	b.ApplyAdd(px("150.02"), 100, types.SideSell, 0, now)

	bidBefore, askBefore := b.BestBid(), b.BestAsk()

	b.ApplyTrade(types.Trade{Ts: 1, Price: px("150.01"), Quantity: 50}, now)

	assert.Equal(t, bidBefore, b.BestBid(), "trade must not move book levels")
	assert.Equal(t, askBefore, b.BestAsk(), "trade must not move book levels")

	stats := b.GetStatistics()
	require.Equal(t, px("150.01"), stats.LastPrice)
	assert.EqualValues(t, 50, stats.TotalVolume)
	assert.EqualValues(t, 1, stats.TradeCount)
}

func TestBookCrossCheckVolatilityTracksParkinsonDirection(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)

	assert.Zero(t, b.CrossCheckVolatility())

	prices := []string{"100.00", "100.50", "99.80", "101.20", "100.10"}
	for _, p := range prices {
		b.ApplyTrade(types.Trade{Ts: 1, Price: px(p), Quantity: 10}, now)
	}

	assert.Greater(t, b.CrossCheckVolatility(), 0.0)
	assert.Greater(t, b.Volatility(), 0.0)
}

func TestBookImbalance(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)
	base := px("150.00")
	for i := 0; i < 5; i++ {
		p := base - types.Price(i)*px("0.01")
		b.ApplyAdd(p, 1000, types.SideBuy, 0, now)
	}
	base = px("150.02")
	for i := 0; i < 5; i++ {
		p := base + types.Price(i)*px("0.01")
		b.ApplyAdd(p, 500, types.SideSell, 0, now)
	}

	want := (5000.0 - 2500.0) / (5000.0 + 2500.0) // 1/3
	assert.InDelta(t, want, b.Imbalance(), 1e-9)
}

func TestBookVWAPRoundTrip(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)

	b.ApplyTrade(types.Trade{Ts: 1, Price: px("100.00"), Quantity: 10}, now)
	b.ApplyTrade(types.Trade{Ts: 2, Price: px("101.00"), Quantity: 20}, now)
	b.ApplyTrade(types.Trade{Ts: 3, Price: px("102.00"), Quantity: 70}, now)

	assert.Equal(t, px("101.60"), b.VWAP())
}

func TestBookBoundaryEmptyAndOneSided(t *testing.T) {
	b := New(sym("TEST"))
	assert.Equal(t, StateEmpty, b.State())
	assert.Zero(t, b.BestBid())
	assert.Zero(t, b.BestAsk())
	assert.Zero(t, b.MidPrice())
	assert.Zero(t, b.Spread())
	assert.Zero(t, b.Imbalance())

	now := types.Timestamp(1000)
	b.ApplyAdd(px("150.00"), 10, types.SideBuy, 0, now)
	assert.Zero(t, b.MidPrice(), "one-sided book must report zero mid sentinel")
	assert.Zero(t, b.Spread(), "one-sided book must report zero spread sentinel")
	assert.Equal(t, StateActive, b.State())
}

func TestBookApplyModifyDecrementsOldLevel(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)
	b.ApplyAdd(px("150.00"), 100, types.SideBuy, 0, now)

	// Literal decrement semantics: modify decrements the OLD level by the
	// NEW quantity, it does not replace the old level outright.
	b.ApplyModify(px("150.00"), px("150.01"), 30, types.SideBuy, 0, now)

	levels := b.TopNBids(5)
	var oldQty, newQty types.Quantity
	for _, lv := range levels {
		switch lv.Price {
		case px("150.00"):
			oldQty = lv.Quantity
		case px("150.01"):
			newQty = lv.Quantity
		}
	}
	assert.EqualValues(t, 70, oldQty, "old level qty should be 100-30")
	assert.EqualValues(t, 30, newQty)
}

func TestBookApplyDeleteRemovesEmptiedLevel(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)
	b.ApplyAdd(px("150.00"), 100, types.SideBuy, 0, now)
	b.ApplyDelete(px("150.00"), 100, types.SideBuy, 0, now)

	assert.Zero(t, b.BestBid(), "fully deleted level should leave best bid at sentinel 0")
	assert.Equal(t, StateEmpty, b.State())
}

func TestBookApplySnapshotReplacesSide(t *testing.T) {
	b := New(sym("TEST"))
	now := types.Timestamp(1000)
	b.ApplyAdd(px("149.00"), 10, types.SideBuy, 0, now)

	b.ApplySnapshot(types.Snapshot{
		Bids: []types.SnapshotLevel{{Price: px("150.00"), Quantity: 20, Orders: 1}},
		Asks: []types.SnapshotLevel{{Price: px("150.05"), Quantity: 15, Orders: 1}},
	}, now)

	assert.Equal(t, px("150.00"), b.BestBid(), "snapshot should replace old bid level entirely")
	assert.Equal(t, px("150.05"), b.BestAsk())
}

func TestBookAverageUpdateLatency(t *testing.T) {
	b := New(sym("TEST"))
	b.ApplyAdd(px("150.00"), 10, types.SideBuy, types.Timestamp(100), types.Timestamp(150))
	b.ApplyAdd(px("150.01"), 10, types.SideBuy, types.Timestamp(100), types.Timestamp(170))

	assert.EqualValues(t, 60, b.AverageUpdateLatencyNs())
}
