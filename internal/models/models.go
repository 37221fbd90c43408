// Package models defines the domain records shared across the advisory
// pipeline: portfolio actions recommended by the advisory service, the
// resolved order instructions derived from them, and execution feedback.
package models

import (
	"fmt"
	"time"
)

// ActionType is a portfolio action recommended by the advisory service.
type ActionType string

const (
	// ActionOpen opens a new long position.
	ActionOpen ActionType = "OPEN"
	// ActionAdd increases an existing long position.
	ActionAdd ActionType = "ADD"
	// ActionReduce trims an existing position (long or short).
	ActionReduce ActionType = "REDUCE"
	// ActionClose closes an existing position (long or short).
	ActionClose ActionType = "CLOSE"
	// ActionShort opens or extends a short position.
	ActionShort ActionType = "SHORT"
	// ActionCover buys back shares to close a short position.
	ActionCover ActionType = "COVER"
)

// Valid reports whether a is one of the six known action types.
func (a ActionType) Valid() bool {
	switch a {
	case ActionOpen, ActionAdd, ActionReduce, ActionClose, ActionShort, ActionCover:
		return true
	}
	return false
}

// IsEntry reports whether a establishes or extends market exposure.
// Entry actions are the ones eligible for bracket-order protection.
func (a ActionType) IsEntry() bool {
	switch a {
	case ActionOpen, ActionAdd, ActionShort:
		return true
	}
	return false
}

// Urgency is the advisory service's execution-priority hint. It is logged
// for audit purposes and never gates execution.
type Urgency string

const (
	UrgencyImmediate Urgency = "IMMEDIATE"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyLow       Urgency = "LOW"
)

// Valid reports whether u is a known urgency level. The empty string is
// accepted since the field is optional in advisory payloads.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyImmediate, UrgencyHigh, UrgencyMedium, UrgencyLow, "":
		return true
	}
	return false
}

// OrderSide is the brokerage order side.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// PortfolioAction is one recommended position change from the advisory
// service, expressed as a transition from a current signed quantity to a
// target signed quantity (positive=long, negative=short, zero=flat).
type PortfolioAction struct {
	Symbol          string     `json:"symbol"`
	Action          ActionType `json:"action"`
	CurrentQty      int        `json:"current_qty"`
	TargetQty       int        `json:"target_qty"`
	QtyChange       int        `json:"qty_change"`
	EntryPriceMin   float64    `json:"entry_price_min"`
	EntryPriceMax   float64    `json:"entry_price_max"`
	TargetPrice     *float64   `json:"target_price,omitempty"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	PositionSizePct float64    `json:"position_size_pct"`
	Confidence      float64    `json:"confidence"`
	Urgency         Urgency    `json:"urgency"`
	Reasoning       string     `json:"reasoning"`
}

// Delta returns target_qty - current_qty, the signed quantity change the
// action asks for. The advisory-supplied qty_change field is advisory only;
// the delta is always recomputed from the signed quantities.
func (a *PortfolioAction) Delta() int {
	return a.TargetQty - a.CurrentQty
}

// Validate checks the structural fields the pipeline depends on. Entries
// failing validation are rejected, never repaired.
func (a *PortfolioAction) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("action missing symbol")
	}
	if !a.Action.Valid() {
		return fmt.Errorf("unknown action type %q for %s", string(a.Action), a.Symbol)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range [0,1] for %s", a.Confidence, a.Symbol)
	}
	if !a.Urgency.Valid() {
		return fmt.Errorf("unknown urgency %q for %s", string(a.Urgency), a.Symbol)
	}
	return nil
}

// MarketOverview is the advisory service's summary of current conditions.
// Carried through for logging and the dashboard; never acted on directly.
type MarketOverview struct {
	Sentiment  string   `json:"sentiment"`
	KeyDrivers []string `json:"key_drivers"`
	RiskLevel  string   `json:"risk_level"`
}

// AdviceResult is a parsed advisory response.
type AdviceResult struct {
	Overview MarketOverview    `json:"market_overview"`
	Actions  []PortfolioAction `json:"actions"`
}

// ResolvedTrade is a concrete order instruction produced from a valid
// PortfolioAction. Quantity is always a positive magnitude; the side
// carries the direction. Produced once per valid action and consumed
// exactly once by the execution guard.
type ResolvedTrade struct {
	Symbol      string
	Side        OrderSide
	Quantity    int
	OrderType   string
	TimeInForce string
	LimitPrice  *float64
	StopLoss    *float64
	TargetPrice *float64

	// Originating advisory fields, for audit logging only.
	Action     ActionType
	Confidence float64
	Urgency    Urgency
	Reasoning  string
}

// TradeError is one execution failure fed back into the next advisory
// prompt so the external decision-maker can adapt.
type TradeError struct {
	Symbol    string     `json:"symbol"`
	Action    ActionType `json:"action"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
