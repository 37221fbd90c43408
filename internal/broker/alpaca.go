// Package broker provides the brokerage API client used to read account
// state and submit equity orders. It implements the Alpaca trading and
// market data REST APIs.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	liveBaseURL  = "https://api.alpaca.markets"
	paperBaseURL = "https://paper-api.alpaca.markets"
	dataBaseURL  = "https://data.alpaca.markets"
)

// Order classes accepted by the orders endpoint.
const (
	OrderClassSimple  = "simple"
	OrderClassBracket = "bracket"
)

// APIError represents a brokerage API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// AlpacaAPI is the concrete Alpaca REST client. Requests are rate limited
// to stay under the published 200 requests/minute account cap.
type AlpacaAPI struct {
	client    *http.Client
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewAlpacaAPI creates a client against the live or paper trading host.
func NewAlpacaAPI(apiKey, apiSecret string, paper bool) *AlpacaAPI {
	baseURL := liveBaseURL
	if paper {
		baseURL = paperBaseURL
	}
	const defaultTimeout = 10 * time.Second
	return &AlpacaAPI{
		client:    &http.Client{Timeout: defaultTimeout},
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		dataURL:   dataBaseURL,
		limiter:   rate.NewLimiter(rate.Limit(200.0/60.0), 10),
		timeout:   defaultTimeout,
	}
}

// WithBaseURLs overrides the trading and data hosts (tests, proxies).
func (a *AlpacaAPI) WithBaseURLs(baseURL, dataURL string) *AlpacaAPI {
	if baseURL != "" {
		a.baseURL = baseURL
	}
	if dataURL != "" {
		a.dataURL = dataURL
	}
	return a
}

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func (a *AlpacaAPI) WithHTTPClient(c *http.Client) *AlpacaAPI {
	if c != nil {
		a.client = c
	}
	return a
}

// WithTimeout sets the HTTP client timeout duration.
func (a *AlpacaAPI) WithTimeout(timeout time.Duration) *AlpacaAPI {
	a.timeout = timeout
	if a.client != nil {
		a.client.Timeout = timeout
	}
	return a
}

// ============ API Response Structures ============

// floatString decodes Alpaca's string-encoded numeric fields ("  "100.25")
// as well as plain JSON numbers and null.
type floatString float64

func (f *floatString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing numeric string %q: %w", s, err)
		}
		*f = floatString(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = floatString(v)
	return nil
}

// Account is the account record from GET /v2/accounts.
type Account struct {
	Status                string      `json:"status"`
	PortfolioValue        floatString `json:"portfolio_value"`
	BuyingPower           floatString `json:"buying_power"`
	Cash                  floatString `json:"cash"`
	Equity                floatString `json:"equity"`
	DaytradingBuyingPower floatString `json:"daytrading_buying_power"`
	RegTBuyingPower       floatString `json:"regt_buying_power"`
	InitialMargin         floatString `json:"initial_margin"`
	MaintenanceMargin     floatString `json:"maintenance_margin"`
	DaytradeCount         int         `json:"daytrade_count"`
	AccountBlocked        bool        `json:"account_blocked"`
	TradingBlocked        bool        `json:"trading_blocked"`
	TransfersBlocked      bool        `json:"transfers_blocked"`
	PatternDayTrader      bool        `json:"pattern_day_trader"`
}

// Position is one open position from GET /v2/positions. Qty is reported
// as a magnitude with Side carrying long/short.
type Position struct {
	Symbol         string      `json:"symbol"`
	Qty            floatString `json:"qty"`
	Side           string      `json:"side"`
	MarketValue    floatString `json:"market_value"`
	CostBasis      floatString `json:"cost_basis"`
	UnrealizedPL   floatString `json:"unrealized_pl"`
	UnrealizedPLPC floatString `json:"unrealized_plpc"`
	AvgEntryPrice  floatString `json:"avg_entry_price"`
}

// Order is an order record from the orders endpoints.
type Order struct {
	ID            string       `json:"id"`
	ClientOrderID string       `json:"client_order_id"`
	Symbol        string       `json:"symbol"`
	Side          string       `json:"side"`
	Qty           floatString  `json:"qty"`
	Type          string       `json:"type"`
	Status        string       `json:"status"`
	OrderClass    string       `json:"order_class,omitempty"`
	LimitPrice    *floatString `json:"limit_price,omitempty"`
	StopPrice     *floatString `json:"stop_price,omitempty"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// Quantity returns the order quantity as a float64.
func (o *Order) Quantity() float64 { return float64(o.Qty) }

// TakeProfit is the take-profit leg of a bracket order.
type TakeProfit struct {
	LimitPrice string `json:"limit_price"`
}

// StopLoss is the stop-loss leg of a bracket order.
type StopLoss struct {
	StopPrice string `json:"stop_price"`
}

// OrderRequest is the body for POST /v2/orders. Alpaca expects numeric
// fields as strings.
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	Qty           string      `json:"qty"`
	Side          string      `json:"side"`
	Type          string      `json:"type"`
	TimeInForce   string      `json:"time_in_force"`
	LimitPrice    string      `json:"limit_price,omitempty"`
	StopPrice     string      `json:"stop_price,omitempty"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	OrderClass    string      `json:"order_class,omitempty"`
	TakeProfit    *TakeProfit `json:"take_profit,omitempty"`
	StopLoss      *StopLoss   `json:"stop_loss,omitempty"`
}

// Clock is the market clock from GET /v2/clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// CalendarDay is one trading day from GET /v2/calendar.
type CalendarDay struct {
	Date  string `json:"date"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     float64   `json:"p"`
		Size      float64   `json:"s"`
		Timestamp time.Time `json:"t"`
	} `json:"trade"`
}

// ============ API Methods ============

// GetAccount retrieves current account information.
func (a *AlpacaAPI) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := a.makeRequestCtx(ctx, http.MethodGet, a.baseURL+"/v2/account", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetPositions retrieves all open positions.
func (a *AlpacaAPI) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := a.makeRequestCtx(ctx, http.MethodGet, a.baseURL+"/v2/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetOpenOrders retrieves orders with status=open.
func (a *AlpacaAPI) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	endpoint := a.baseURL + "/v2/orders?status=open&limit=200"
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// SubmitOrder places an order, including bracket orders when the request
// carries an order class with protective legs.
func (a *AlpacaAPI) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("order symbol is required")
	}
	if req.Qty == "" || req.Qty == "0" {
		return nil, fmt.Errorf("order quantity is required")
	}
	var order Order
	if err := a.makeRequestCtx(ctx, http.MethodPost, a.baseURL+"/v2/orders", &req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels an open order by ID.
func (a *AlpacaAPI) CancelOrder(ctx context.Context, orderID string) error {
	endpoint := fmt.Sprintf("%s/v2/orders/%s", a.baseURL, orderID)
	return a.makeRequestCtx(ctx, http.MethodDelete, endpoint, nil, nil)
}

// GetLatestPrice retrieves the most recent trade price for a symbol from
// the market data host.
func (a *AlpacaAPI) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.dataURL, symbol)
	var resp latestTradeResponse
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price available for %s", symbol)
	}
	return resp.Trade.Price, nil
}

// GetClock retrieves the current market clock.
func (a *AlpacaAPI) GetClock(ctx context.Context) (*Clock, error) {
	var clock Clock
	if err := a.makeRequestCtx(ctx, http.MethodGet, a.baseURL+"/v2/clock", nil, &clock); err != nil {
		return nil, err
	}
	return &clock, nil
}

// GetCalendar retrieves the market calendar between two dates inclusive.
func (a *AlpacaAPI) GetCalendar(ctx context.Context, start, end time.Time) ([]CalendarDay, error) {
	endpoint := fmt.Sprintf("%s/v2/calendar?start=%s&end=%s",
		a.baseURL, start.Format("2006-01-02"), end.Format("2006-01-02"))
	var days []CalendarDay
	if err := a.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &days); err != nil {
		return nil, err
	}
	return days, nil
}

// makeRequestCtx makes an HTTP request with context support. A non-nil
// body is sent as JSON. A nil response discards the payload.
func (a *AlpacaAPI) makeRequestCtx(ctx context.Context, method, endpoint string,
	body interface{}, response interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "grokswing/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // cap error payloads
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(raw))}
	}

	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
