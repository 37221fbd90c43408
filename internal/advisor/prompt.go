package advisor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmelton/grokswing/internal/broker"
	"github.com/dmelton/grokswing/internal/models"
)

const systemInstruction = "You are an expert AI trading analyst managing a swing-trading " +
	"portfolio of liquid US equities. You respond with a single JSON document " +
	"following the requested schema exactly."

// BuildPrompt assembles the single user-role prompt for an advisory
// request: account figures, positions, open orders with locked shares,
// pending execution errors with resolution hints, and last-known prices.
func BuildPrompt(snap *Snapshot, pending []models.TradeError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current time: %s\n\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	b.WriteString("ACCOUNT:\n")
	if acct := snap.Account; acct != nil {
		fmt.Fprintf(&b, "- account value: $%.2f\n", float64(acct.PortfolioValue))
		fmt.Fprintf(&b, "- buying power: $%.2f\n", float64(acct.BuyingPower))
		fmt.Fprintf(&b, "- cash: $%.2f\n", float64(acct.Cash))
		fmt.Fprintf(&b, "- equity: $%.2f\n", float64(acct.Equity))
		fmt.Fprintf(&b, "- day trade count: %d\n", acct.DaytradeCount)
		if acct.TradingBlocked || acct.AccountBlocked {
			b.WriteString("- WARNING: account has trading restrictions\n")
		}
	}

	b.WriteString("\nPOSITIONS:\n")
	if len(snap.Positions) == 0 {
		b.WriteString("- no open positions\n")
	}
	for _, p := range snap.Positions {
		qty := float64(p.Qty)
		if strings.EqualFold(p.Side, "short") {
			qty = -qty
		}
		fmt.Fprintf(&b, "- %s: %+.0f shares, market value $%.2f, avg entry $%.2f, unrealized P&L $%.2f (%.2f%%)\n",
			p.Symbol, qty, float64(p.MarketValue), float64(p.AvgEntryPrice),
			float64(p.UnrealizedPL), float64(p.UnrealizedPLPC)*100)
	}

	b.WriteString("\nOPEN ORDERS:\n")
	if len(snap.OpenOrders) == 0 {
		b.WriteString("- none\n")
	}
	for _, o := range snap.OpenOrders {
		fmt.Fprintf(&b, "- %s %s %.0f %s (%s, %s)\n",
			o.Side, o.Symbol, o.Quantity(), o.Type, o.Status,
			o.SubmittedAt.Format("2006-01-02 15:04"))
	}
	if locked := broker.LockedShares(snap.OpenOrders); len(locked) > 0 {
		b.WriteString("Shares locked in open sell orders (unavailable for new sells):\n")
		for _, symbol := range sortedKeys(locked) {
			fmt.Fprintf(&b, "- %s: %.0f\n", symbol, locked[symbol])
		}
	}

	if len(pending) > 0 {
		b.WriteString("\nEXECUTION ERRORS FROM YOUR PREVIOUS RECOMMENDATIONS:\n")
		b.WriteString("These trades failed. Adjust your next recommendations accordingly.\n")
		for _, e := range pending {
			fmt.Fprintf(&b, "- %s %s: %s (hint: %s)\n", e.Action, e.Symbol, e.Message, hintFor(e))
		}
	}

	if len(snap.Prices) > 0 {
		b.WriteString("\nLAST KNOWN PRICES:\n")
		for _, symbol := range sortedKeys(snap.Prices) {
			fmt.Fprintf(&b, "- %s: $%.2f\n", symbol, snap.Prices[symbol])
		}
	}

	b.WriteString(responseSchema)
	return b.String()
}

// sortedKeys keeps prompt sections in a stable symbol order so identical
// snapshots produce identical prompts.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// hintFor maps an execution failure to a human-readable resolution hint
// for the advisory service.
func hintFor(e models.TradeError) string {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "insufficient quantity"):
		return "lower target_qty so the change fits the sellable shares, or wait for open sell orders to fill"
	case strings.Contains(msg, "insufficient buying power"):
		return "recommend a smaller position size or free up buying power first"
	case strings.Contains(msg, "restrict") || strings.Contains(msg, "blocked"):
		return "the account is restricted; avoid new entries until restrictions clear"
	default:
		return "verify current_qty and target_qty against the position list above"
	}
}

const responseSchema = `
Analyze current market conditions and this portfolio, then respond with JSON:
{
    "market_overview": {
        "sentiment": "BULLISH|BEARISH|NEUTRAL",
        "key_drivers": ["driver1", "driver2"],
        "risk_level": "LOW|MEDIUM|HIGH"
    },
    "actions": [
        {
            "symbol": "STOCK_SYMBOL",
            "action": "OPEN|ADD|REDUCE|CLOSE|SHORT|COVER",
            "current_qty": 0,
            "target_qty": 0,
            "qty_change": 0,
            "entry_price_min": 100.00,
            "entry_price_max": 105.00,
            "target_price": 120.00,
            "stop_loss": 95.00,
            "position_size_pct": 0.20,
            "confidence": 0.75,
            "urgency": "IMMEDIATE|HIGH|MEDIUM|LOW",
            "reasoning": "Detailed analysis here"
        }
    ]
}
Quantities are signed: positive=long, negative=short, zero=flat.
current_qty must match the position list above; target_qty is the desired
end state. Only recommend liquid stocks with daily volume > 1M shares.
`
