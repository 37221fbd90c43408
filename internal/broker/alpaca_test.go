package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAPI(serverURL string) *AlpacaAPI {
	return NewAlpacaAPI("test-key", "test-secret", true).
		WithBaseURLs(serverURL, serverURL)
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 422, Body: "insufficient qty available"}
	want := "API error 422: insufficient qty available"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNewAlpacaAPI_HostSelection(t *testing.T) {
	if api := NewAlpacaAPI("k", "s", true); api.baseURL != paperBaseURL {
		t.Errorf("paper baseURL = %q, want %q", api.baseURL, paperBaseURL)
	}
	if api := NewAlpacaAPI("k", "s", false); api.baseURL != liveBaseURL {
		t.Errorf("live baseURL = %q, want %q", api.baseURL, liveBaseURL)
	}
}

func TestFloatString_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"quoted number", `"100.25"`, 100.25, false},
		{"plain number", `100.25`, 100.25, false},
		{"quoted integer", `"42"`, 42, false},
		{"negative quoted", `"-3.5"`, -3.5, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage string", `"not-a-number"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f floatString
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s) = %v, want error", tt.in, float64(f))
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
			}
			if float64(f) != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, float64(f), tt.want)
			}
		})
	}
}

func TestGetAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/account" {
			t.Errorf("path = %q, want /v2/account", r.URL.Path)
		}
		if got := r.Header.Get("APCA-API-KEY-ID"); got != "test-key" {
			t.Errorf("key header = %q, want test-key", got)
		}
		if got := r.Header.Get("APCA-API-SECRET-KEY"); got != "test-secret" {
			t.Errorf("secret header = %q, want test-secret", got)
		}
		_, _ = w.Write([]byte(`{
			"status": "ACTIVE",
			"portfolio_value": "25000.50",
			"buying_power": "50000.00",
			"cash": "12000.25",
			"daytrade_count": 1,
			"trading_blocked": false
		}`))
	}))
	defer server.Close()

	account, err := newTestAPI(server.URL).GetAccount(context.Background())
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if float64(account.PortfolioValue) != 25000.50 {
		t.Errorf("PortfolioValue = %v, want 25000.50", float64(account.PortfolioValue))
	}
	if float64(account.BuyingPower) != 50000.00 {
		t.Errorf("BuyingPower = %v, want 50000", float64(account.BuyingPower))
	}
	if account.DaytradeCount != 1 {
		t.Errorf("DaytradeCount = %d, want 1", account.DaytradeCount)
	}
}

func TestGetPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol": "AAPL", "qty": "100", "side": "long", "avg_entry_price": "180.50"},
			{"symbol": "TSLA", "qty": "30", "side": "short", "avg_entry_price": "250.00"}
		]`))
	}))
	defer server.Close()

	positions, err := newTestAPI(server.URL).GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions() error = %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("len = %d, want 2", len(positions))
	}
	if positions[0].Symbol != "AAPL" || float64(positions[0].Qty) != 100 {
		t.Errorf("positions[0] = %+v, want AAPL qty 100", positions[0])
	}
	if positions[1].Side != "short" {
		t.Errorf("positions[1].Side = %q, want short", positions[1].Side)
	}
}

func TestGetOpenOrders_QueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "open" {
			t.Errorf("status = %q, want open", q.Get("status"))
		}
		_, _ = w.Write([]byte(`[{"id": "abc", "symbol": "AAPL", "side": "sell", "qty": "40", "status": "open"}]`))
	}))
	defer server.Close()

	orders, err := newTestAPI(server.URL).GetOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOpenOrders() error = %v", err)
	}
	if len(orders) != 1 || orders[0].Quantity() != 40 {
		t.Errorf("orders = %+v, want one 40-share order", orders)
	}
}

func TestSubmitOrder_Bracket(t *testing.T) {
	var got OrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/orders" {
			t.Errorf("request = %s %s, want POST /v2/orders", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		_, _ = w.Write([]byte(`{"id": "order-1", "symbol": "AAPL", "status": "accepted", "qty": "50"}`))
	}))
	defer server.Close()

	order, err := newTestAPI(server.URL).SubmitOrder(context.Background(), OrderRequest{
		Symbol:      "AAPL",
		Qty:         "50",
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
		OrderClass:  OrderClassBracket,
		TakeProfit:  &TakeProfit{LimitPrice: "210.00"},
		StopLoss:    &StopLoss{StopPrice: "185.00"},
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error = %v", err)
	}
	if order.ID != "order-1" {
		t.Errorf("order ID = %q, want order-1", order.ID)
	}
	if got.OrderClass != OrderClassBracket {
		t.Errorf("order_class = %q, want bracket", got.OrderClass)
	}
	if got.TakeProfit == nil || got.TakeProfit.LimitPrice != "210.00" {
		t.Errorf("take_profit = %+v, want limit 210.00", got.TakeProfit)
	}
	if got.StopLoss == nil || got.StopLoss.StopPrice != "185.00" {
		t.Errorf("stop_loss = %+v, want stop 185.00", got.StopLoss)
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	api := newTestAPI("http://unused.invalid")
	if _, err := api.SubmitOrder(context.Background(), OrderRequest{Qty: "10"}); err == nil {
		t.Error("SubmitOrder() without symbol succeeded, want error")
	}
	if _, err := api.SubmitOrder(context.Background(), OrderRequest{Symbol: "AAPL"}); err == nil {
		t.Error("SubmitOrder() without quantity succeeded, want error")
	}
}

func TestSubmitOrder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "insufficient buying power"}`))
	}))
	defer server.Close()

	_, err := newTestAPI(server.URL).SubmitOrder(context.Background(), OrderRequest{
		Symbol: "AAPL", Qty: "50", Side: "buy", Type: "market", TimeInForce: "day",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SubmitOrder() error = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
}

func TestGetLatestPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/stocks/AAPL/trades/latest" {
			t.Errorf("path = %q, want /v2/stocks/AAPL/trades/latest", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"symbol": "AAPL", "trade": {"p": 192.34, "s": 100}}`))
	}))
	defer server.Close()

	price, err := newTestAPI(server.URL).GetLatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetLatestPrice() error = %v", err)
	}
	if price != 192.34 {
		t.Errorf("price = %v, want 192.34", price)
	}
}

func TestGetLatestPrice_NoTrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "XYZ", "trade": {"p": 0}}`))
	}))
	defer server.Close()

	if _, err := newTestAPI(server.URL).GetLatestPrice(context.Background(), "XYZ"); err == nil {
		t.Error("GetLatestPrice() with zero price succeeded, want error")
	}
}

func TestGetClock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_open": true, "timestamp": "2025-03-14T10:30:00-04:00"}`))
	}))
	defer server.Close()

	clock, err := newTestAPI(server.URL).GetClock(context.Background())
	if err != nil {
		t.Fatalf("GetClock() error = %v", err)
	}
	if !clock.IsOpen {
		t.Error("IsOpen = false, want true")
	}
}

func TestCancelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v2/orders/order-9" {
			t.Errorf("request = %s %s, want DELETE /v2/orders/order-9", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestAPI(server.URL).CancelOrder(context.Background(), "order-9"); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
}
