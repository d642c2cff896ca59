package aggregator

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tradsys/marketcore/internal/bookmgr"
	"github.com/tradsys/marketcore/internal/metrics"
	"github.com/tradsys/marketcore/internal/queue"
	"github.com/tradsys/marketcore/internal/types"
)

func newTestAggregator(t *testing.T) (*Aggregator, queue.Queue[types.Message], *bookmgr.Manager) {
	t.Helper()
	q := queue.NewMPSC[types.Message](64)
	books := bookmgr.New(types.NewClock(), time.Minute)
	m := metrics.New(prometheus.NewRegistry())
	logger := zaptest.NewLogger(t)
	agg := New(q, books, m, types.NewClock(), logger, 8)
	return agg, q, books
}

func TestAggregatorAppliesQueuedMessages(t *testing.T) {
	agg, q, books := newTestAggregator(t)

	sym := types.SymbolFromString("AAPL")
	q.TryPush(types.Message{
		Kind:  types.MessageOrderAdd,
		Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(1500000), Quantity: 10},
	})

	done := make(chan struct{})
	go func() {
		agg.Run()
		close(done)
	}()

	waitUntil(t, func() bool {
		b, err := books.Get(sym)
		return err == nil && b.BestBid() == types.Price(1500000)
	})

	agg.Stop()
	<-done
}

func TestAggregatorDrainsOnStop(t *testing.T) {
	agg, q, books := newTestAggregator(t)

	sym := types.SymbolFromString("MSFT")
	for i := 0; i < 5; i++ {
		q.TryPush(types.Message{
			Kind:  types.MessageOrderAdd,
			Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(int64(i) + 1), Quantity: 1},
		})
	}

	done := make(chan struct{})
	go func() {
		agg.Run()
		close(done)
	}()
	agg.Stop()
	<-done

	b, err := books.Get(sym)
	require.NoError(t, err, "expected book to exist after drain")
	assert.Len(t, b.TopNBids(10), 5, "expected all 5 queued levels to be drained and applied")
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
