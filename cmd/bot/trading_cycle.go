package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmelton/grokswing/internal/advisor"
	"github.com/dmelton/grokswing/internal/journal"
	"github.com/dmelton/grokswing/internal/models"
	"github.com/dmelton/grokswing/internal/resolver"
)

// TradingCycle runs one pass of the advisory pipeline: snapshot the
// brokerage state, request advice, resolve each action into an order, and
// submit whatever survives the pre-trade checks. A failure anywhere short
// of submission degrades the cycle to a no-op; the loop tries again next
// interval.
type TradingCycle struct {
	bot *Bot
}

func NewTradingCycle(bot *Bot) *TradingCycle {
	return &TradingCycle{bot: bot}
}

// Run executes one cycle. Errors are logged and journaled, never returned:
// a bad cycle must not take the loop down.
func (tc *TradingCycle) Run(ctx context.Context) {
	bot := tc.bot
	started := time.Now()
	rec := journal.CycleRecord{
		ID:        uuid.NewString(),
		StartedAt: started,
	}
	bot.logger.Printf("Starting trading cycle %s", rec.ID[:8])

	finish := func(outcome, notes string) {
		rec.FinishedAt = time.Now()
		rec.Outcome = outcome
		rec.Notes = notes
		if err := bot.journal.RecordCycle(rec); err != nil {
			bot.logger.Printf("Warning: failed to record cycle: %v", err)
		}
		bot.logger.Printf("Cycle %s finished in %s: %s", rec.ID[:8],
			rec.FinishedAt.Sub(started).Round(time.Millisecond), outcome)
	}

	if !tc.marketOpen(ctx) {
		bot.logger.Println("Market closed, skipping cycle")
		finish("skipped", "market closed")
		return
	}

	snap, err := tc.fetchSnapshot(ctx)
	if err != nil {
		bot.logger.Printf("Warning: failed to snapshot brokerage state: %v", err)
		finish("failed", fmt.Sprintf("snapshot: %v", err))
		return
	}
	bot.logger.Printf("Snapshot: $%.2f portfolio value, %d positions, %d open orders",
		float64(snap.Account.PortfolioValue), len(snap.Positions), len(snap.OpenOrders))

	advCtx, cancel := context.WithTimeout(ctx, bot.config.GetAdvisorTimeout())
	advice, err := bot.advisor.RequestAdvice(advCtx, snap)
	cancel()
	if err != nil {
		bot.logger.Printf("Warning: advisory request failed, holding positions: %v", err)
		finish("no_advice", err.Error())
		return
	}

	if advice.Overview.Sentiment != "" {
		bot.logger.Printf("Market overview: sentiment %s, risk %s",
			advice.Overview.Sentiment, advice.Overview.RiskLevel)
	}
	rec.ActionCount = len(advice.Actions)
	if len(advice.Actions) == 0 {
		bot.logger.Println("Advisor recommends no actions this cycle")
		finish("completed", "no actions recommended")
		return
	}

	for i := range advice.Actions {
		if ctx.Err() != nil {
			bot.logger.Println("Cancellation observed, stopping before further submissions")
			finish("completed", fmt.Sprintf("canceled after %d of %d actions", i, len(advice.Actions)))
			return
		}
		tc.processAction(ctx, &advice.Actions[i], snap, &rec)
	}

	finish("completed", "")
}

// processAction resolves one advisory action and runs it through the
// execution guard. Resolver rejections are advisory mistakes and are only
// logged; guard and submission failures are recorded for the next prompt.
func (tc *TradingCycle) processAction(ctx context.Context, action *models.PortfolioAction, snap *advisor.Snapshot, rec *journal.CycleRecord) {
	bot := tc.bot

	trade, err := resolver.Resolve(action)
	if err != nil {
		rec.RejectedCount++
		bot.logger.Printf("Warning: rejected action for %s: %v", action.Symbol, err)
		return
	}

	bot.logger.Printf("Resolved %s %s: %s %d shares (confidence %.2f, urgency %s)",
		trade.Action, trade.Symbol, trade.Side, trade.Quantity, trade.Confidence, trade.Urgency)

	order, err := bot.guard.Execute(ctx, trade, snap.Account, snap.Positions, snap.OpenOrders)
	if err != nil {
		rec.FailedCount++
		bot.advisor.Feedback().Record(trade.Symbol, trade.Action, err.Error())
		bot.logger.Printf("Warning: execution failed for %s: %v", trade.Symbol, err)
		return
	}

	rec.ExecutedCount++
	if err := bot.journal.RecordTrade(journal.TradeRecord{
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		Quantity:   trade.Quantity,
		Action:     string(trade.Action),
		OrderID:    order.ID,
		Confidence: trade.Confidence,
		Urgency:    string(trade.Urgency),
		Reasoning:  trade.Reasoning,
		Timestamp:  time.Now(),
	}); err != nil {
		bot.logger.Printf("Warning: failed to journal trade for %s: %v", trade.Symbol, err)
	}
}

// marketOpen consults the broker clock, falling back to the configured
// trading window when the clock endpoint is unavailable.
func (tc *TradingCycle) marketOpen(ctx context.Context) bool {
	bot := tc.bot
	if bot.config.Schedule.AfterHoursCheck {
		return true
	}

	clockCtx, cancel := context.WithTimeout(ctx, bot.config.GetBrokerTimeout())
	defer cancel()
	clock, err := bot.broker.GetClock(clockCtx)
	if err != nil {
		bot.logger.Printf("Warning: market clock unavailable, using configured window: %v", err)
		return bot.config.IsWithinTradingHours(time.Now())
	}
	return clock.IsOpen
}

// fetchSnapshot pulls the account, positions, and open orders, then best-
// effort prices for each held symbol. Price lookups failing is tolerable;
// the prompt simply omits them.
func (tc *TradingCycle) fetchSnapshot(ctx context.Context) (*advisor.Snapshot, error) {
	bot := tc.bot
	timeout := bot.config.GetBrokerTimeout()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	account, err := bot.broker.GetAccount(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}

	callCtx, cancel = context.WithTimeout(ctx, timeout)
	positions, err := bot.broker.GetPositions(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	callCtx, cancel = context.WithTimeout(ctx, timeout)
	openOrders, err := bot.broker.GetOpenOrders(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetching open orders: %w", err)
	}

	prices := make(map[string]float64, len(positions))
	for _, pos := range positions {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		price, err := bot.broker.GetLatestPrice(callCtx, pos.Symbol)
		cancel()
		if err != nil {
			bot.logger.Printf("Warning: no price for %s: %v", pos.Symbol, err)
			continue
		}
		prices[pos.Symbol] = price
	}

	return &advisor.Snapshot{
		Account:    account,
		Positions:  positions,
		OpenOrders: openOrders,
		Prices:     prices,
	}, nil
}
