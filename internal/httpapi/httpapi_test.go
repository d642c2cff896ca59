package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/tradsys/marketcore/internal/bookmgr"
	"github.com/tradsys/marketcore/internal/types"
)

func TestHealthzReturnsOK(t *testing.T) {
	books := bookmgr.New(types.NewClock(), time.Minute)
	s := NewServer(books, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSnapshotNotFoundForUnknownSymbol(t *testing.T) {
	books := bookmgr.New(types.NewClock(), time.Minute)
	s := NewServer(books, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/snapshot/NOPE", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSymbolsAndSnapshotAfterApply(t *testing.T) {
	books := bookmgr.New(types.NewClock(), time.Minute)
	s := NewServer(books, nil, zaptest.NewLogger(t))

	sym := types.SymbolFromString("AAPL")
	books.Apply(types.Message{
		Kind:  types.MessageOrderAdd,
		Delta: types.BookDelta{Symbol: sym, Side: types.SideBuy, Price: types.Price(1500000), Quantity: 10},
	})

	req := httptest.NewRequest(http.MethodGet, "/symbols", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/snapshot/AAPL", nil)
	w2 := httptest.NewRecorder()
	s.Engine().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestCorrelationRequiresBothBooksActive(t *testing.T) {
	books := bookmgr.New(types.NewClock(), time.Minute)
	s := NewServer(books, nil, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/correlation/AAPL/MSFT", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, "404 expected for missing symbols")
}
