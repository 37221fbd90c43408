// Package resolver maps advisory portfolio actions onto concrete order
// instructions. Resolution is a pure function: it performs no I/O and an
// action/quantity combination outside the validity table is rejected,
// never reinterpreted.
package resolver

import (
	"fmt"

	"github.com/dmelton/grokswing/internal/models"
)

// RejectError reports an action whose quantity change is inconsistent with
// its action type. This is a contract violation by the advisory service
// and is surfaced, not silently corrected.
type RejectError struct {
	Symbol    string
	Action    models.ActionType
	QtyChange int
	Reason    string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected %s %s (qty change %+d): %s",
		e.Action, e.Symbol, e.QtyChange, e.Reason)
}

// Resolve converts a portfolio action into an order-side + quantity
// instruction. The validity table, by (action, sign of target-current):
//
//	OPEN/+  ADD/+  COVER/+            -> buy
//	SHORT/-                           -> sell
//	REDUCE/- CLOSE/-                  -> sell (trim or close long)
//	REDUCE/+ CLOSE/+                  -> buy  (partial cover of a short)
//
// Every other combination returns a *RejectError.
func Resolve(action *models.PortfolioAction) (*models.ResolvedTrade, error) {
	if err := action.Validate(); err != nil {
		return nil, &RejectError{
			Symbol:    action.Symbol,
			Action:    action.Action,
			QtyChange: action.Delta(),
			Reason:    err.Error(),
		}
	}

	change := action.Delta()
	if change == 0 {
		return nil, &RejectError{
			Symbol:    action.Symbol,
			Action:    action.Action,
			QtyChange: 0,
			Reason:    "target equals current quantity",
		}
	}

	var side models.OrderSide
	switch action.Action {
	case models.ActionOpen, models.ActionAdd:
		if change < 0 {
			return nil, reject(action, change, "requires a positive quantity change")
		}
		side = models.SideBuy
	case models.ActionShort:
		if change > 0 {
			return nil, reject(action, change, "requires a negative quantity change")
		}
		side = models.SideSell
	case models.ActionCover:
		if change < 0 {
			return nil, reject(action, change, "requires a positive quantity change")
		}
		side = models.SideBuy
	case models.ActionReduce, models.ActionClose:
		// Negative change trims a long; positive change partially covers
		// a short. Both directions are legitimate here.
		if change < 0 {
			side = models.SideSell
		} else {
			side = models.SideBuy
		}
	default:
		return nil, reject(action, change, "unknown action type")
	}

	qty := change
	if qty < 0 {
		qty = -qty
	}

	trade := &models.ResolvedTrade{
		Symbol:      action.Symbol,
		Side:        side,
		Quantity:    qty,
		OrderType:   "market",
		TimeInForce: "day",
		StopLoss:    action.StopLoss,
		TargetPrice: action.TargetPrice,
		Action:      action.Action,
		Confidence:  action.Confidence,
		Urgency:     action.Urgency,
		Reasoning:   action.Reasoning,
	}

	// Buy-side entries with an advisory entry range go out as limit orders
	// capped at the top of the range, matching the advisory intent.
	if side == models.SideBuy && action.Action.IsEntry() && action.EntryPriceMax > 0 {
		limit := action.EntryPriceMax
		trade.OrderType = "limit"
		trade.LimitPrice = &limit
	}

	return trade, nil
}

func reject(a *models.PortfolioAction, change int, reason string) *RejectError {
	return &RejectError{
		Symbol:    a.Symbol,
		Action:    a.Action,
		QtyChange: change,
		Reason:    fmt.Sprintf("%s %s", a.Action, reason),
	}
}
