package strategy

// Position-sizing helpers shared by the built-in strategies. All sizes are
// share quantities (fractional allowed); the simulator still clips against
// available cash at fill time.

// RiskSize returns the share quantity that puts riskPct of equity at risk
// over the given stop distance (entry price minus stop price). A zero or
// negative stop distance yields 0.
func RiskSize(equity, riskPct, stopDistance float64) float64 {
	if stopDistance <= 0 || equity <= 0 || riskPct <= 0 {
		return 0
	}
	return equity * riskPct / stopDistance
}

// CapNotional clips shares so the position's notional value at price does
// not exceed maxPositionPct of equity.
func CapNotional(shares, price, equity, maxPositionPct float64) float64 {
	if price <= 0 || maxPositionPct <= 0 {
		return 0
	}
	maxShares := equity * maxPositionPct / price
	if shares > maxShares {
		return maxShares
	}
	return shares
}
