package engine

import "github.com/shopspring/decimal"

// Futures fee schedule. The flat estimator below deliberately charges taker
// on exit only; NetPnLPrecise charges taker on both legs.
var (
	makerFeeRate = decimal.NewFromFloat(0.0002)
	takerFeeRate = decimal.NewFromFloat(0.0005)
)

// SLLossEstimate is the projected damage of a stop-loss fill.
type SLLossEstimate struct {
	PriceDifference  float64 `json:"priceDifference"`
	PriceChangePct   float64 `json:"priceChangePercent"`
	LossAmount       float64 `json:"lossAmount"`
	RemainingBalance float64 `json:"remainingBalance"`
	LossPct          float64 `json:"lossPercent"`
}

// FuturesPosition is the slice of an exchange position needed for fee math.
type FuturesPosition struct {
	PositionAmt float64
	EntryPrice  float64
	MarkPrice   float64
}

// PNLPercent returns the leveraged percentage return of a position marked at
// currentPrice, rounded to 2 decimals. side "BUY" profits on price up.
func PNLPercent(entryPrice, currentPrice float64, side string, leverage float64) float64 {
	if entryPrice == 0 {
		return 0
	}
	entry := decimal.NewFromFloat(entryPrice)
	current := decimal.NewFromFloat(currentPrice)

	change := entry.Sub(current)
	if side == "BUY" {
		change = current.Sub(entry)
	}
	pct := change.Div(entry).Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromFloat(leverage))
	f, _ := pct.Round(2).Float64()
	return f
}

// EstimatedPnL converts a leveraged percentage return into USDT, net of the
// exit taker fee on the full notional. Returns 0 on nonsense inputs.
func EstimatedPnL(margin, pnlPct, leverage float64) float64 {
	if margin <= 0 || leverage <= 0 {
		return 0
	}
	m := decimal.NewFromFloat(margin)
	gross := decimal.NewFromFloat(pnlPct).Div(decimal.NewFromInt(100)).Mul(m)
	exitFee := m.Mul(decimal.NewFromFloat(leverage)).Mul(takerFeeRate)
	f, _ := gross.Sub(exitFee).Float64()
	return f
}

// TakerFee on the full position notional.
func TakerFee(margin, leverage float64) float64 {
	f, _ := decimal.NewFromFloat(margin).
		Mul(decimal.NewFromFloat(leverage)).
		Mul(takerFeeRate).Float64()
	return f
}

// EstimateSLLoss projects the loss of a stop-loss fill from the entry price.
// Returns nil when any required input is missing.
func EstimateSLLoss(side string, entryPrice, slPrice, positionCost, leverage float64) *SLLossEstimate {
	if entryPrice == 0 || slPrice == 0 || positionCost == 0 {
		return nil
	}
	if leverage <= 0 {
		leverage = 1
	}

	entry := decimal.NewFromFloat(entryPrice)
	diff := entry.Sub(decimal.NewFromFloat(slPrice))
	if side != "BUY" {
		diff = diff.Neg()
	}

	roiPct := diff.Div(entry).Mul(decimal.NewFromFloat(leverage)).Mul(decimal.NewFromInt(100))
	cost := decimal.NewFromFloat(positionCost)
	lossAmount := cost.Mul(roiPct).Div(decimal.NewFromInt(100))
	remaining, _ := cost.Sub(lossAmount).Float64()

	priceDiff, _ := diff.Abs().Float64()
	changePct, _ := diff.Div(entry).Mul(decimal.NewFromInt(100)).Abs().Float64()
	loss, _ := lossAmount.Abs().Float64()
	lossPct, _ := roiPct.Abs().Float64()

	return &SLLossEstimate{
		PriceDifference:  priceDiff,
		PriceChangePct:   changePct,
		LossAmount:       loss,
		RemainingBalance: remaining,
		LossPct:          lossPct,
	}
}

// NetPnLPrecise subtracts worst-case taker fees on both legs of each open
// position from the unrealized PnL. Falls back to the gross figure when the
// position data is unusable.
func NetPnLPrecise(unrealizedPnL float64, positions []FuturesPosition) float64 {
	if len(positions) == 0 {
		return unrealizedPnL
	}

	totalFees := decimal.Zero
	for _, p := range positions {
		amt := decimal.NewFromFloat(p.PositionAmt)
		entryNotional := amt.Mul(decimal.NewFromFloat(p.EntryPrice)).Abs()
		exitNotional := amt.Mul(decimal.NewFromFloat(p.MarkPrice)).Abs()
		totalFees = totalFees.Add(entryNotional.Add(exitNotional).Mul(takerFeeRate))
	}
	if totalFees.IsNegative() {
		return unrealizedPnL
	}

	net, _ := decimal.NewFromFloat(unrealizedPnL).Sub(totalFees).Float64()
	return net
}
