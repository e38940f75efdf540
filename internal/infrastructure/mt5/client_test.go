package mt5

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionsDecodesBridgePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/positions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"ticket": 1001, "symbol": "EURUSD", "type": 0, "volume": 0.1,
			 "price_open": 1.1, "sl": 1.095, "tp": 1.105, "profit": 2.5,
			 "magic": 0, "comment": "", "time": 1700000000}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	positions, err := client.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, int64(1001), p.Ticket)
	assert.Equal(t, "EURUSD", p.Symbol)
	assert.Equal(t, PositionTypeBuy, p.Type)
	assert.InDelta(t, 1.095, p.StopLoss, 1e-9)
	assert.InDelta(t, 1.105, p.TakeProfit, 1e-9)
	assert.InDelta(t, 2.5, p.Profit, 1e-9)
}

func TestPositionsBySymbolPassesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GBPUSD", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	positions, err := client.PositionsBySymbol("GBPUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestOrderSendPostsRequestAndDecodesResult(t *testing.T) {
	var received TradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/order", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"retcode": 10009, "order": 5001, "deal": 7001, "volume": 0.2, "price": 1.0999}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	result, err := client.OrderSend(&TradeRequest{
		Action:      TradeActionDeal,
		Symbol:      "EURUSD",
		Type:        OrderTypeSell,
		Volume:      0.2,
		Price:       1.0999,
		StopLoss:    1.105,
		TakeProfit:  1.095,
		Deviation:   20,
		Magic:       987654321,
		Comment:     "REV of 1001",
		TypeFilling: OrderFillingFOK,
		TypeTime:    OrderTimeGTC,
	})
	require.NoError(t, err)

	assert.True(t, result.Done())
	assert.Equal(t, int64(5001), result.Order)
	assert.Equal(t, int64(7001), result.Deal)

	assert.Equal(t, "EURUSD", received.Symbol)
	assert.Equal(t, OrderTypeSell, received.Type)
	assert.InDelta(t, 1.105, received.StopLoss, 1e-9)
	assert.Equal(t, "REV of 1001", received.Comment)
}

func TestOrderSendSurfacesStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"retcode": 10019, "message": "No money"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.OrderSend(&TradeRequest{Action: TradeActionDeal, Symbol: "EURUSD"})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 10019, apiErr.Retcode)
	assert.Contains(t, apiErr.Error(), "No money")
}

func TestErrorWithUnstructuredBodyKeepsRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("terminal not connected"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Positions()
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "terminal not connected")
}

func TestSelectSymbolHitsSelectEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.SelectSymbol("XAUUSD"))
	assert.Equal(t, "/symbols/XAUUSD/select", path)
}

func TestNormalizePrice(t *testing.T) {
	assert.InDelta(t, 1.09995, NormalizePrice(5, 1.099951), 1e-12)
	assert.InDelta(t, 1910.13, NormalizePrice(2, 1910.1349), 1e-12)
	assert.InDelta(t, 7.0, NormalizePrice(0, 7.4), 1e-12)
}

func TestMarketPrice(t *testing.T) {
	tick := &Tick{Bid: 1.0999, Ask: 1.1001}
	assert.Equal(t, tick.Ask, MarketPrice(tick, OrderTypeBuy))
	assert.Equal(t, tick.Bid, MarketPrice(tick, OrderTypeSell))
}
