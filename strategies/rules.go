// Package strategies holds the entry rule bank. Rules run in list order and
// a later rule may overwrite an earlier one's decision, so the ordering below
// is part of the strategy, not an implementation detail.
package strategies

import (
	"fmt"
	"math"
	"strings"

	"zone-backtest/services/engine"
)

// DefaultRules returns the production rule bank in evaluation order.
func DefaultRules() []engine.Rule {
	return []engine.Rule{
		{Name: "SHORT_CRAZY_1", Apply: shortCrazy1},
		{Name: "LONG_CRAZY_1", Apply: longCrazy1},
		{Name: "SHORT_CRAZY_2", Apply: shortCrazy2},
		{Name: "LONG_CRAZY_2", Apply: longCrazy2OrShortCrazy3},
		{Name: "SHORT_CRAZY_4", Apply: shortCrazy4},
		{Name: "SHORT_CRAZY_5", Apply: shortCrazy5},
		{Name: "LONG_CRAZY_3", Apply: longCrazy3},
		{Name: "LONG_CRAZY_4", Apply: longCrazy4},
		{Name: "LONG_1", Apply: long1},
		{Name: "SHORT_1", Apply: short1},
		{Name: "SHORT_2", Apply: short2},
	}
}

func lastN(entries []*engine.CandleEntry, n int) []*engine.CandleEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// zoneOf resolves a candle's session zone. The current candle is not yet
// annotated while rules run, so its zone comes from the context.
func zoneOf(ctx *engine.RuleContext, e *engine.CandleEntry) *engine.PriceZone {
	if e == ctx.Candle {
		z := ctx.Zone
		return &z
	}
	if e.Analytics == nil {
		return nil
	}
	return e.Analytics.PriceZone
}

// dataOf resolves a candle's feature data, falling back to the context's
// still-mutable copy for the current candle.
func dataOf(ctx *engine.RuleContext, e *engine.CandleEntry) *engine.CandleData {
	if e == ctx.Candle {
		return ctx.Data
	}
	return e.Data()
}

// spread returns the percentage distance from the lowest open to the highest
// close across the window.
func spread(entries []*engine.CandleEntry) float64 {
	lowestOpen := math.Inf(1)
	highestClose := math.Inf(-1)
	for _, c := range entries {
		lowestOpen = math.Min(lowestOpen, c.Open)
		highestClose = math.Max(highestClose, c.Close)
	}
	if lowestOpen == 0 || math.IsInf(lowestOpen, 1) {
		return 0
	}
	return (highestClose - lowestOpen) / lowestOpen * 100
}

// shortCrazy1 fades a vertical pump: over 20% from low to high across five
// candles, price already above the zone and holding there.
func shortCrazy1(ctx *engine.RuleContext) {
	past5 := lastN(ctx.Entries, 5)
	diff := spread(past5)
	ctx.Data.ExtraInfo = fmt.Sprintf("%v", diff)

	if diff <= 20 || ctx.Candle.Close <= ctx.Zone.Upper {
		return
	}
	for _, c := range lastN(ctx.Entries, 20) {
		if d := dataOf(ctx, c); d != nil && strings.HasPrefix(d.ConditionMet, "SHORT_CRAZY") {
			return
		}
	}
	aboveZone := 0
	for _, c := range past5 {
		if zoneOf(ctx, c) != nil && c.Open > ctx.Zone.Upper {
			aboveZone++
		}
	}
	if aboveZone < 3 {
		return
	}

	maxHigh := math.Inf(-1)
	for _, c := range past5 {
		maxHigh = math.Max(maxHigh, c.High)
	}

	ctx.Data.ConditionMet = "SHORT_CRAZY_1"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR*3
	ctx.Candle.SlPrice = maxHigh + ctx.ATR*0.3
}

// longCrazy1 buys a flash crash between -30% and -50% in one candle.
func longCrazy1(ctx *engine.RuleContext) {
	if ctx.Data.ChangePct >= -30 || ctx.Data.ChangePct <= -50 {
		return
	}
	ctx.Data.ConditionMet = "LONG_CRAZY_1"
	ctx.Candle.Side = engine.SideLong
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close + ctx.ATR*1.5
	ctx.Candle.SlPrice = ctx.Candle.Low
}

// shortCrazy2 shorts a collapse beyond -50%, expecting continuation.
func shortCrazy2(ctx *engine.RuleContext) {
	if ctx.Data.ChangePct >= -50 {
		return
	}
	ctx.Data.ConditionMet = "SHORT_CRAZY_2"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR
	ctx.Candle.SlPrice = ctx.Candle.Close + ctx.ATR
}

// longCrazy2OrShortCrazy3 handles a 15%+ breakout out of a quiet regime. The
// volume z-score history decides which way to lean: a clean tape goes long
// with the move, a tape with prior 3-sigma volume spikes fades it.
func longCrazy2OrShortCrazy3(ctx *engine.RuleContext) {
	quiet, spikes, bigVolZ := 0, 0, 0
	for _, c := range lastN(ctx.Entries, 24) {
		if c.OpenTime >= ctx.Candle.OpenTime {
			continue
		}
		if d := c.Data(); d != nil {
			if math.Abs(d.ChangePct) < 2 {
				quiet++
			}
			if d.VolumeSpike {
				spikes++
			}
		}
		if c.Analyzed() && c.Analytics.VolumeAnalysis.ZScore >= 3 {
			bigVolZ++
		}
	}
	if quiet < 20 || spikes >= 3 || ctx.Data.ChangePct <= 15 {
		return
	}

	if bigVolZ <= 1 {
		ctx.Candle.TpPrice = ctx.Candle.Close + ctx.ATR*1.5
		ctx.Candle.SlPrice = ctx.Candle.High - ctx.ATR*2.5
		if ctx.Candle.SlPrice < ctx.Candle.Close {
			ctx.Data.ConditionMet = "LONG_CRAZY_2"
			ctx.Candle.Side = engine.SideLong
			ctx.Candle.Margin = ctx.BaseMargin * 3
		} else {
			ctx.Candle.TpPrice = 0
			ctx.Candle.SlPrice = 0
		}
	} else {
		ctx.Data.ConditionMet = "SHORT_CRAZY_3"
		ctx.Candle.Side = engine.SideShort
		ctx.Candle.Margin = ctx.BaseMargin * 3
		ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR*2.5
		ctx.Candle.SlPrice = ctx.Candle.High + ctx.ATR*0.5
	}
}

// shortCrazy4 fades five straight overbought bull candles on spiking volume
// after a 10%+ run.
func shortCrazy4(ctx *engine.RuleContext) {
	past5 := lastN(ctx.Entries, 5)
	bulls, overbought, spiking := 0, 0, 0
	for _, c := range past5 {
		d := dataOf(ctx, c)
		if d == nil || d.Side != "bull" {
			continue
		}
		bulls++
		if d.OverState == "overbought" {
			overbought++
		}
		if d.VolumeSpike {
			spiking++
		}
	}
	if bulls != 5 || overbought < 4 || spiking < 4 || spread(past5) <= 10 {
		return
	}

	maxHigh := math.Inf(-1)
	for _, c := range past5 {
		maxHigh = math.Max(maxHigh, c.High)
	}

	ctx.Data.ConditionMet = "SHORT_CRAZY_4"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR*2
	ctx.Candle.SlPrice = maxHigh + ctx.ATR
}

// shortCrazy5 shorts a failed push above the zone: a strong candle, then a
// long-wicked stall, then a bearish rejection, all after an extended run.
func shortCrazy5(ctx *engine.RuleContext) {
	if ctx.Prev2 == nil {
		return
	}
	d2 := ctx.Prev2.Data()
	d1 := ctx.Prev.Data()
	if d2 == nil || d1 == nil {
		return
	}
	if d2.ChangePct <= 1 ||
		d1.TopWickPct <= 50 || d1.ChangePct >= 0.5 || d1.Side != "bull" ||
		ctx.Data.Side != "bear" ||
		ctx.Candle.Close <= ctx.Prev2.Open ||
		ctx.Data.ChangePct >= -1 ||
		ctx.Prev2.Open <= ctx.Zone.Upper {
		return
	}

	bulls := 0
	for _, c := range lastN(ctx.Entries, 15) {
		if d := dataOf(ctx, c); d != nil && d.Side == "bull" {
			bulls++
		}
	}
	if bulls < 9 {
		return
	}
	for _, c := range lastN(ctx.Entries, 10) {
		if c.OpenTime < ctx.Prev2.OpenTime && c.Close > ctx.Prev2.Open {
			return
		}
	}

	diff := spread(lastN(ctx.Entries, 15))
	if diff <= 10 {
		return
	}

	ctx.Data.IsShortPotential = true
	ctx.Data.ConditionMet = "SHORT_CRAZY_5"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR*2
	ctx.Candle.SlPrice = math.Max(ctx.Prev2.High, math.Max(ctx.Prev.High, ctx.Candle.High)) + ctx.ATR*3
	ctx.Data.ExtraInfo = fmt.Sprintf("%v", diff)
}

// longCrazy3 buys capitulation below the zone: a sustained bleed, a
// dragged-down oversold candle on 3-sigma volume, then a 2%+ snap back while
// the rolling state still reads overbought.
func longCrazy3(ctx *engine.RuleContext) {
	if ctx.Data.OverState != "overbought" {
		return
	}

	past15 := lastN(ctx.Entries, 15)
	lowestClose := math.Inf(1)
	highestOpen := math.Inf(-1)
	for _, c := range past15 {
		lowestClose = math.Min(lowestClose, c.Close)
		highestOpen = math.Max(highestOpen, c.Open)
	}
	if highestOpen == 0 {
		return
	}
	diff := (lowestClose - highestOpen) / highestOpen * 100
	if diff >= -6 {
		return
	}

	bleeders, belowZone := 0, 0
	for _, c := range past15 {
		if c.OpenTime < ctx.Candle.OpenTime {
			if d := c.Data(); d != nil && d.Side == "bear" && d.ChangePct < -0.5 {
				bleeders++
			}
		}
		if z := zoneOf(ctx, c); z != nil && c.Open < z.Lower && c.Close < z.Lower {
			belowZone++
		}
	}
	d1 := ctx.Prev.Data()
	if bleeders <= 8 ||
		ctx.Candle.Close >= ctx.Zone.Lower ||
		d1 == nil || d1.PriceMove != "dragged_down" || d1.OverState != "oversold" ||
		belowZone < 7 ||
		!d1.VolumeSpike ||
		ctx.Data.ChangePct <= 2 ||
		!ctx.Prev.Analyzed() || ctx.Prev.Analytics.VolumeAnalysis.ZScore < 3 {
		return
	}

	ctx.Data.ConditionMet = "LONG_CRAZY_3"
	ctx.Candle.Side = engine.SideLong
	ctx.Candle.Margin = ctx.BaseMargin * 3
	ctx.Candle.TpPrice = ctx.Candle.Close + ctx.ATR*1.8
	ctx.Candle.SlPrice = math.Min(ctx.Prev.Low, ctx.Candle.Low) + ctx.ATR*0.5
	ctx.Data.ExtraInfo = fmt.Sprintf("%v", diff)
}

// longCrazy4 buys any single-candle drop beyond -22%, at base margin.
func longCrazy4(ctx *engine.RuleContext) {
	if ctx.Data.ChangePct >= -22 {
		return
	}
	ctx.Data.ConditionMet = "LONG_CRAZY_4"
	ctx.Candle.Side = engine.SideLong
	ctx.Candle.TpPrice = ctx.Candle.Close + ctx.ATR*1.5
	ctx.Candle.SlPrice = ctx.Candle.Close - ctx.ATR*0.3
}

// long1 buys a resistance break that pulled back under the zone midpoint,
// when the lower half of the zone showed repeated capitulation with volume.
func long1(ctx *engine.RuleContext) {
	if !ctx.Candle.BreakthroughResistance || ctx.Candle.Close >= ctx.Zone.Mid {
		return
	}

	past24 := lastN(ctx.Entries, 24)
	brokeSupport := 0
	for _, c := range past24 {
		if z := zoneOf(ctx, c); z != nil && c.Close < z.Lower && c.BreakthroughSupport {
			brokeSupport++
		}
	}
	if brokeSupport < 4 {
		return
	}

	volumeBelowZone := 0
	for _, c := range past24 {
		if c.OpenTime >= ctx.Candle.OpenTime {
			continue
		}
		d := c.Data()
		z := zoneOf(ctx, c)
		if d != nil && z != nil &&
			d.Side == "bear" && d.VolumeSpike &&
			c.Open < z.Lower && c.Close < z.Lower &&
			c.BreakthroughSupport {
			volumeBelowZone++
		}
	}

	earlyPhase := ctx.ZoneInhabitants < 10
	latePhaseWithPush := ctx.ZoneInhabitants > 15 && ctx.Data.ChangePct > 1.5
	if volumeBelowZone < 1 || (!earlyPhase && !latePhaseWithPush) {
		return
	}

	ctx.Data.IsLongPotential = true
	ctx.Data.ConditionMet = "LONG_1"
	ctx.Candle.Side = engine.SideLong
	ctx.Candle.Margin = ctx.BaseMargin * 1.5
	ctx.Candle.TpPrice = ctx.Zone.Upper - ctx.ATR*0.2
	if ctx.Candle.Open > ctx.Zone.Lower {
		ctx.Candle.SlPrice = ctx.Zone.Lower - ctx.ATR
	} else {
		ctx.Candle.SlPrice = ctx.Candle.Open - ctx.ATR*1.5
	}
}

// shortOneSetup is the shared precondition of the SHORT_1/SHORT_2 pair: a
// bearish candle well above the zone whose ATR-adjusted close still holds
// over the midpoint.
func shortOneSetup(ctx *engine.RuleContext) bool {
	if ctx.Data.Side != "bear" ||
		ctx.Data.ChangePct > -1.5 ||
		ctx.Candle.Close <= ctx.Zone.Upper ||
		ctx.CloseATRAdjusted <= ctx.Zone.Mid ||
		ctx.DistToUpperPct <= 5 {
		return false
	}
	hot := 0
	for _, c := range lastN(ctx.Entries, 6) {
		if c.OpenTime < ctx.Candle.OpenTime && c.Analyzed() && c.Analytics.CloseATRAbsChange > 2 {
			hot++
		}
	}
	return hot >= 3
}

// short1 shorts a bearish rejection far above the zone, unless recent buy
// pressure says the breakout is real.
func short1(ctx *engine.RuleContext) {
	if !shortOneSetup(ctx) {
		return
	}

	buyPressure := 0
	for _, c := range lastN(ctx.Entries, 24) {
		if d := dataOf(ctx, c); d != nil && d.Side == "bull" && d.VolumeSpike && c.BreakthroughResistance {
			buyPressure++
		}
	}
	if buyPressure >= 5 {
		return
	}

	touchedUpper := 0
	for _, c := range lastN(ctx.Entries, 6) {
		z := zoneOf(ctx, c)
		nearUpper := c.Analyzed() && c.Analytics.CloseZoneDistance != nil && c.Analytics.CloseZoneDistance.Upper < 1
		if c == ctx.Candle {
			nearUpper = ctx.DistToUpperPct < 1
		}
		if (z != nil && c.Low < z.Upper) || nearUpper {
			touchedUpper++
		}
	}

	ctx.Data.IsShortPotential = true
	ctx.Data.ConditionMet = "SHORT_1"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 1.5
	ctx.Candle.TpPrice = ctx.Candle.Close - ctx.ATR
	if touchedUpper >= 1 && ctx.Candle.TpPrice > ctx.Zone.Upper {
		ctx.Candle.TpPrice = ctx.Zone.Upper
	}
	ctx.Candle.SlPrice = ctx.Candle.Open + ctx.ATR*6
}

// short2 shorts an early-zone bearish fade back inside the band when the
// previous zone spent most of its life above its own upper boundary with few
// resistance breaks. Only evaluated when the SHORT_1 setup did not trigger.
func short2(ctx *engine.RuleContext) {
	if shortOneSetup(ctx) {
		return
	}
	if ctx.Data.Side != "bear" ||
		ctx.CloseATRAdjusted <= ctx.Zone.Mid ||
		ctx.CloseATRAbsChange <= 2 ||
		ctx.ZoneInhabitants >= 6 ||
		ctx.Candle.Open >= ctx.Zone.Upper ||
		ctx.Data.ChangePct >= -1 {
		return
	}
	if len(ctx.PriceZones) < 2 {
		return
	}
	previousZone := ctx.PriceZones[len(ctx.PriceZones)-2]

	resistanceBreaks, aboveZone := 0, 0
	for _, c := range lastN(ctx.Entries, 24) {
		if c.OpenTime < ctx.Candle.OpenTime && c.Data() != nil && c.BreakthroughResistance {
			resistanceBreaks++
		}
		if zoneOf(ctx, c) == previousZone && c.Close > previousZone.Upper {
			aboveZone++
		}
	}
	if resistanceBreaks > 3 || aboveZone <= 14 {
		return
	}

	ctx.Data.IsShortPotential = true
	ctx.Data.ConditionMet = "SHORT_2"
	ctx.Candle.Side = engine.SideShort
	ctx.Candle.Margin = ctx.BaseMargin * 1.5
	ctx.Candle.TpPrice = ctx.LowerEqualizer + ctx.ATR*0.3
	ctx.Candle.SlPrice = ctx.Zone.Upper + ctx.ATR*6
}
