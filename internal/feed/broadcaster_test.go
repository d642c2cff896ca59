package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tradsys/marketcore/internal/book"
	"github.com/tradsys/marketcore/internal/types"
)

func TestBuildSnapshotShape(t *testing.T) {
	b := book.New(types.SymbolFromString("AAPL"))
	now := types.Timestamp(1)
	b.ApplyAdd(types.Price(1500000), 100, types.SideBuy, 0, now)
	b.ApplyAdd(types.Price(1500200), 100, types.SideSell, 0, now)

	snap := BuildSnapshot(b, 1000)
	assert.Equal(t, "AAPL", snap.Symbol)
	assert.Equal(t, 150.0, snap.BestBid)
	assert.Equal(t, 150.02, snap.BestAsk)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}

func TestBroadcasterPublishFansOutToSinks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	b, err := NewBroadcaster(4, logger)
	require.NoError(t, err)
	defer b.Close()

	sinkA := &MemorySink{}
	sinkB := &MemorySink{}
	b.RegisterSink("a", sinkA)
	b.RegisterSink("b", sinkB)

	assert.Equal(t, 2, b.SubscriberCount())

	bk := book.New(types.SymbolFromString("TEST"))
	snap := BuildSnapshot(bk, 1)
	require.NoError(t, b.Publish(snap))

	assert.Len(t, sinkA.Received, 1)
	assert.Len(t, sinkB.Received, 1)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(sinkA.Received[0], &decoded))
	assert.Equal(t, "TEST", decoded.Symbol)

	b.Unregister("a")
	assert.Equal(t, 1, b.SubscriberCount())
}
