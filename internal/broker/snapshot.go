package broker

import "strings"

// LockedShares returns, per symbol, the quantity already committed to open
// sell orders. Shares locked by an outstanding sell order are unavailable
// for a new sell instruction.
func LockedShares(orders []Order) map[string]float64 {
	locked := make(map[string]float64)
	for _, o := range orders {
		if strings.EqualFold(o.Side, "sell") {
			locked[o.Symbol] += o.Quantity()
		}
	}
	return locked
}

// AvailableShares returns the sellable quantity for a symbol: the position
// quantity minus shares locked in open sell orders. Returns 0 when no
// position exists.
func AvailableShares(positions []Position, orders []Order, symbol string) float64 {
	var held float64
	for _, p := range positions {
		if p.Symbol == symbol {
			held = float64(p.Qty)
			break
		}
	}
	available := held - LockedShares(orders)[symbol]
	if available < 0 {
		return 0
	}
	return available
}
