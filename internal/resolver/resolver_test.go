package resolver

import (
	"errors"
	"testing"

	"github.com/dmelton/grokswing/internal/models"
)

func action(sym string, at models.ActionType, current, target int) *models.PortfolioAction {
	return &models.PortfolioAction{
		Symbol:     sym,
		Action:     at,
		CurrentQty: current,
		TargetQty:  target,
		Confidence: 0.8,
	}
}

func TestResolve_ValidityTable(t *testing.T) {
	tests := []struct {
		name     string
		action   models.ActionType
		current  int
		target   int
		wantSide models.OrderSide
		wantQty  int
		wantErr  bool
	}{
		{"open long", models.ActionOpen, 0, 50, models.SideBuy, 50, false},
		{"open with negative change", models.ActionOpen, 50, 0, "", 0, true},
		{"add to long", models.ActionAdd, 100, 150, models.SideBuy, 50, false},
		{"add with negative change", models.ActionAdd, 150, 100, "", 0, true},
		{"reduce long", models.ActionReduce, 100, 60, models.SideSell, 40, false},
		{"reduce short", models.ActionReduce, -100, -60, models.SideBuy, 40, false},
		{"close long", models.ActionClose, 100, 0, models.SideSell, 100, false},
		{"close short", models.ActionClose, -100, 0, models.SideBuy, 100, false},
		{"short entry", models.ActionShort, 0, -30, models.SideSell, 30, false},
		{"extend short", models.ActionShort, -30, -60, models.SideSell, 30, false},
		{"short with positive change", models.ActionShort, 0, 30, "", 0, true},
		{"cover short", models.ActionCover, -30, 0, models.SideBuy, 30, false},
		{"partial cover", models.ActionCover, -60, -30, models.SideBuy, 30, false},
		{"cover with negative change", models.ActionCover, 0, -30, "", 0, true},
		{"zero change open", models.ActionOpen, 50, 50, "", 0, true},
		{"zero change close", models.ActionClose, 0, 0, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := Resolve(action("AAPL", tt.action, tt.current, tt.target))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve() = %+v, want rejection", trade)
				}
				var rejErr *RejectError
				if !errors.As(err, &rejErr) {
					t.Fatalf("Resolve() error = %T, want *RejectError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if trade.Side != tt.wantSide {
				t.Errorf("Side = %q, want %q", trade.Side, tt.wantSide)
			}
			if trade.Quantity != tt.wantQty {
				t.Errorf("Quantity = %d, want %d", trade.Quantity, tt.wantQty)
			}
			if trade.Quantity <= 0 {
				t.Errorf("Quantity = %d, must be positive", trade.Quantity)
			}
		})
	}
}

func TestResolve_IgnoresAdvisoryQtyChange(t *testing.T) {
	// qty_change from the advisory payload is untrusted; the delta is
	// recomputed from the signed quantities.
	a := action("MSFT", models.ActionReduce, 100, 70)
	a.QtyChange = -999

	trade, err := Resolve(a)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if trade.Quantity != 30 {
		t.Errorf("Quantity = %d, want 30 (from target-current, not qty_change)", trade.Quantity)
	}
	if trade.Side != models.SideSell {
		t.Errorf("Side = %q, want sell", trade.Side)
	}
}

func TestResolve_InvalidAction(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.PortfolioAction)
	}{
		{"missing symbol", func(a *models.PortfolioAction) { a.Symbol = "" }},
		{"unknown action", func(a *models.PortfolioAction) { a.Action = "HEDGE" }},
		{"confidence above one", func(a *models.PortfolioAction) { a.Confidence = 1.5 }},
		{"negative confidence", func(a *models.PortfolioAction) { a.Confidence = -0.1 }},
		{"unknown urgency", func(a *models.PortfolioAction) { a.Urgency = "ASAP" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := action("NVDA", models.ActionOpen, 0, 10)
			tt.mutate(a)
			if _, err := Resolve(a); err == nil {
				t.Error("Resolve() error = nil, want rejection")
			}
		})
	}
}

func TestResolve_OrderDefaults(t *testing.T) {
	trade, err := Resolve(action("SPY", models.ActionClose, 10, 0))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if trade.OrderType != "market" {
		t.Errorf("OrderType = %q, want market", trade.OrderType)
	}
	if trade.TimeInForce != "day" {
		t.Errorf("TimeInForce = %q, want day", trade.TimeInForce)
	}
	if trade.LimitPrice != nil {
		t.Errorf("LimitPrice = %v, want nil for exits", *trade.LimitPrice)
	}
}

func TestResolve_EntryLimitPrice(t *testing.T) {
	a := action("AMD", models.ActionOpen, 0, 25)
	a.EntryPriceMin = 95
	a.EntryPriceMax = 100

	trade, err := Resolve(a)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if trade.OrderType != "limit" {
		t.Fatalf("OrderType = %q, want limit", trade.OrderType)
	}
	if trade.LimitPrice == nil || *trade.LimitPrice != 100 {
		t.Errorf("LimitPrice = %v, want 100 (top of entry range)", trade.LimitPrice)
	}
}

func TestResolve_CarriesAuditFields(t *testing.T) {
	stop := 90.0
	target := 120.0
	a := action("TSLA", models.ActionOpen, 0, 10)
	a.StopLoss = &stop
	a.TargetPrice = &target
	a.Urgency = models.UrgencyHigh
	a.Reasoning = "breakout above resistance"

	trade, err := Resolve(a)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if trade.StopLoss == nil || *trade.StopLoss != stop {
		t.Errorf("StopLoss = %v, want %v", trade.StopLoss, stop)
	}
	if trade.TargetPrice == nil || *trade.TargetPrice != target {
		t.Errorf("TargetPrice = %v, want %v", trade.TargetPrice, target)
	}
	if trade.Urgency != models.UrgencyHigh {
		t.Errorf("Urgency = %q, want HIGH", trade.Urgency)
	}
	if trade.Reasoning != a.Reasoning {
		t.Errorf("Reasoning = %q, want %q", trade.Reasoning, a.Reasoning)
	}
}
