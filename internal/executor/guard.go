// Package executor performs pre-trade safety checks and order submission.
// The guard applies mechanical safety only - quantity availability, buying
// power, account restrictions - and never second-guesses advisory strategy.
package executor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmelton/grokswing/internal/broker"
	"github.com/dmelton/grokswing/internal/models"
)

// InsufficientQuantityError reports a sell request exceeding the sellable
// quantity (position minus shares locked in open sell orders).
type InsufficientQuantityError struct {
	Symbol    string
	Requested float64
	Available float64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity for %s: requested %.0f, available %.0f",
		e.Symbol, e.Requested, e.Available)
}

// InsufficientBuyingPowerError reports an order whose estimated cost
// exceeds the account's buying power.
type InsufficientBuyingPowerError struct {
	Symbol        string
	EstimatedCost float64
	BuyingPower   float64
}

func (e *InsufficientBuyingPowerError) Error() string {
	return fmt.Sprintf("insufficient buying power for %s: estimated cost $%.2f, buying power $%.2f",
		e.Symbol, e.EstimatedCost, e.BuyingPower)
}

// AccountRestrictedError reports an account blocked from trading.
type AccountRestrictedError struct {
	Status string
}

func (e *AccountRestrictedError) Error() string {
	return fmt.Sprintf("account is blocked from trading (status %s)", e.Status)
}

// Guard validates resolved trades against a fresh account snapshot and
// submits the ones that pass. Brokerage failures during submission are
// returned as errors, never propagated as faults that abort the cycle.
type Guard struct {
	broker  broker.Broker
	logger  *log.Logger
	timeout time.Duration
}

// NewGuard creates an execution guard. timeout bounds each brokerage call
// made during validation and submission.
func NewGuard(b broker.Broker, logger *log.Logger, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Guard{broker: b, logger: logger, timeout: timeout}
}

// Execute runs the pre-submission checks in order, short-circuiting on the
// first failure, then submits the order. Trades carrying a stop loss on an
// entry action go out as a single atomic bracket order so the protective
// leg exists the instant the entry fills.
func (g *Guard) Execute(
	ctx context.Context,
	trade *models.ResolvedTrade,
	account *broker.Account,
	positions []broker.Position,
	openOrders []broker.Order,
) (*broker.Order, error) {
	// Structural sanity.
	if trade.Symbol == "" {
		return nil, fmt.Errorf("trade has no symbol")
	}
	if trade.Quantity <= 0 {
		return nil, fmt.Errorf("trade quantity must be positive, got %d", trade.Quantity)
	}
	if account.TradingBlocked || account.AccountBlocked {
		return nil, &AccountRestrictedError{Status: account.Status}
	}

	switch trade.Side {
	case models.SideSell:
		if trade.Action == models.ActionShort {
			// A short sale borrows shares rather than selling held
			// ones; it consumes buying power like a buy does.
			if err := g.checkBuyingPower(ctx, trade, account); err != nil {
				return nil, err
			}
		} else if err := g.checkAvailability(trade, positions, openOrders); err != nil {
			return nil, err
		}
	case models.SideBuy:
		if err := g.checkBuyingPower(ctx, trade, account); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown order side %q", trade.Side)
	}

	return g.submit(ctx, trade)
}

func (g *Guard) checkAvailability(trade *models.ResolvedTrade, positions []broker.Position, openOrders []broker.Order) error {
	available := broker.AvailableShares(positions, openOrders, trade.Symbol)
	if float64(trade.Quantity) > available {
		return &InsufficientQuantityError{
			Symbol:    trade.Symbol,
			Requested: float64(trade.Quantity),
			Available: available,
		}
	}
	return nil
}

func (g *Guard) checkBuyingPower(ctx context.Context, trade *models.ResolvedTrade, account *broker.Account) error {
	priceCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	price, err := g.broker.GetLatestPrice(priceCtx, trade.Symbol)
	if err != nil {
		return fmt.Errorf("fetching reference price for %s: %w", trade.Symbol, err)
	}

	estimatedCost := price * float64(trade.Quantity)
	buyingPower := float64(account.BuyingPower)
	if estimatedCost > buyingPower {
		return &InsufficientBuyingPowerError{
			Symbol:        trade.Symbol,
			EstimatedCost: estimatedCost,
			BuyingPower:   buyingPower,
		}
	}
	return nil
}

func (g *Guard) submit(ctx context.Context, trade *models.ResolvedTrade) (*broker.Order, error) {
	req := broker.OrderRequest{
		Symbol:        trade.Symbol,
		Qty:           strconv.Itoa(trade.Quantity),
		Side:          string(trade.Side),
		Type:          trade.OrderType,
		TimeInForce:   trade.TimeInForce,
		ClientOrderID: "grokswing-" + uuid.New().String(),
	}
	if trade.LimitPrice != nil {
		req.LimitPrice = formatPrice(*trade.LimitPrice)
	}

	// Protective legs must be attached atomically at entry. Submitting the
	// stop as a separate, later order leaves a window where the position
	// exists unprotected and can draw broker-side wash-trade rejections.
	if trade.StopLoss != nil && trade.Action.IsEntry() {
		req.OrderClass = broker.OrderClassBracket
		req.StopLoss = &broker.StopLoss{StopPrice: formatPrice(*trade.StopLoss)}
		if trade.TargetPrice != nil {
			req.TakeProfit = &broker.TakeProfit{LimitPrice: formatPrice(*trade.TargetPrice)}
		}
	}

	submitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	order, err := g.broker.SubmitOrder(submitCtx, req)
	if err != nil {
		return nil, fmt.Errorf("submitting %s %d %s: %w", trade.Side, trade.Quantity, trade.Symbol, err)
	}

	g.logger.Printf("Order submitted: %s %d %s (%s, action=%s, confidence=%.2f, urgency=%s) id=%s",
		trade.Side, trade.Quantity, trade.Symbol, req.Type,
		trade.Action, trade.Confidence, trade.Urgency, order.ID)
	if req.OrderClass == broker.OrderClassBracket {
		g.logger.Printf("Bracket legs attached for %s: stop=$%s take_profit=%v",
			trade.Symbol, req.StopLoss.StopPrice, req.TakeProfit != nil)
	}
	return order, nil
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
