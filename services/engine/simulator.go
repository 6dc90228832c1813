package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TpSl is a take-profit / stop-loss price pair from the pricing collaborator.
type TpSl struct {
	TpPrice float64
	SlPrice float64
}

// Pricer computes exchange-aware TP/SL prices for a prospective entry.
type Pricer interface {
	CalculateTpSl(ctx context.Context, margin float64, symbol, side string, price float64, targetTpRoi, targetSlRoi float64) (TpSl, error)
}

// RuleContext is everything an entry rule may inspect when deciding whether
// to mark the current candle as a position entry. Rules run in order and a
// later rule may overwrite an earlier rule's decision, so ordering is part of
// the strategy.
type RuleContext struct {
	// Entries is the history up to and including the current candle.
	Entries []*CandleEntry
	Candle  *CandleEntry
	Prev    *CandleEntry
	// Prev2 is the candle two behind the current one, nil early in a series.
	Prev2 *CandleEntry
	// Data is the current candle's feature set, still mutable at rule time.
	Data *CandleData

	ATR        float64
	BaseMargin float64
	Zone       PriceZone

	// ZoneInhabitants counts candles of the trailing 24 that share the
	// current session zone.
	ZoneInhabitants int
	// PriceZones lists every session zone seen so far, oldest first.
	PriceZones []*PriceZone

	DistToUpperPct float64
	DistToMidPct   float64
	DistToLowerPct float64

	// ATR-adjusted close of the current candle, shifted one ATR in the body
	// direction, and its absolute percentage change from the raw close.
	CloseATRAdjusted  float64
	CloseATRAbsChange float64

	// Equalizer prices split the zone halves, nudged down 0.05%.
	UpperEqualizer float64
	LowerEqualizer float64
}

// Rule is one entry condition. Apply inspects the context and, when the
// condition fires, sets Side/TpPrice/SlPrice/Margin on the candle and
// ConditionMet on its feature data.
type Rule struct {
	Name  string
	Apply func(*RuleContext)
}

// RiskFilter may veto a freshly opened position. It receives the entry candle
// after TP/SL and fees are set, plus the estimated PnL of a stop-loss fill.
// Returning true rejects the entry.
type RiskFilter func(entry *CandleEntry, estimatedSlPnl float64) bool

// Simulator walks a candle series forward, annotating each candle with the
// full analytics set and simulating position entries and exits. Each step
// sees only the candles up to and including itself; the previous candle's
// status drives this candle's evaluation.
type Simulator struct {
	Symbol      string
	Margin      float64
	TargetTpRoi float64
	TargetSlRoi float64
	MaxLeverage float64
	Location    *time.Location
	Rules       []Rule
	Pricer      Pricer
	RiskFilter  RiskFilter
	Logger      *zap.Logger
}

// Run simulates entries[1..entryIndex] in place. The walk is deterministic
// for a fixed input series and configuration. A pricing failure skips that
// entry and the walk continues; only context cancellation aborts it.
func (s *Simulator) Run(ctx context.Context, entries []*CandleEntry, entryIndex int) error {
	if entryIndex >= len(entries) {
		entryIndex = len(entries) - 1
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var openPosition *CandleEntry
	var activeZone *PriceZone
	var zoneOpenTime int64

	for i := 1; i <= entryIndex; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		moving := entries[:i+1]
		c := entries[i]
		prev := entries[i-1]
		var prev2 *CandleEntry
		if i >= 2 {
			prev2 = entries[i-2]
		}

		if c.Support == nil || c.Resistance == nil {
			continue
		}

		side := "SELL"
		if c.Close > c.Open {
			side = "BUY"
		}

		za := AnalyzeZoneBias(side, c.Close, moving, *c.Support, *c.Resistance, 20, 10, 5, 50)
		va := ComputeVolumeAnalysis(moving, c.Close, 20)
		ob := DetectOverboughtOversold(va, za, moving, 20)
		cd := AnalyzeCandlestick(moving, i, true, 5)
		pastVol := AnalyzePastVolumes(entries, i, 20)
		atr := ATR(Candles(moving), 8)

		pastChangeSum := 0.0
		pStart := len(moving) - 20
		if pStart < 0 {
			pStart = 0
		}
		for _, pc := range moving[pStart:] {
			if d := pc.Data(); d != nil {
				if d.ChangePct < 0 {
					pastChangeSum -= d.ChangePct
				} else {
					pastChangeSum += d.ChangePct
				}
			}
		}

		cd.PriceMove = DetectPriceMove(moving, len(moving)-1)
		cd.VolumeSpike = HasVolumeSpike(moving, 20, 1.8)
		cd.OverState = DetectOverState(moving, 8, 2)
		cd.PastCandleAverageChange = pastChangeSum / 20
		cd.ATR = atr
		cd.EMA200 = EMA(Candles(moving), 200)

		closeATRAdjusted := c.Close
		if cd.Side == "bear" {
			closeATRAdjusted = c.Close - atr
		} else {
			closeATRAdjusted = c.Close + atr
		}
		closeATRAbsChange := 0.0
		if closeATRAdjusted != 0 {
			closeATRAbsChange = (c.Close - closeATRAdjusted) / closeATRAdjusted * 100
			if closeATRAbsChange < 0 {
				closeATRAbsChange = -closeATRAbsChange
			}
		}

		if cd.OverState != "" {
			cd.PastZoneOverStateReaction = PreviousSessionOverStateReaction(moving, cd.OverState)
		}

		// Session zone roll.
		if IsSessionBoundary(c.OpenTime, s.Location) {
			zStart := len(moving) - 24
			if zStart < 0 {
				zStart = 0
			}
			zone := GeneratePriceZone(moving[zStart:])
			activeZone = &zone
			zoneOpenTime = c.OpenTime
			c.Status = StatusZoneStart
			cd.IsNewZone = true
		}

		var zoneInteraction *PriceZoneInteraction
		var closeZoneDist *CloseZoneDistance
		if activeZone != nil {
			inhabitants := 0
			for _, mc := range moving {
				if mc.OpenTime >= zoneOpenTime &&
					activeZone.Contains(mc.Close) && activeZone.Contains(mc.Open) {
					inhabitants++
				}
			}
			cd.ZoneInhabitantCount = inhabitants

			zi := AnalyzeZoneInteraction(moving, *activeZone, 50)
			zoneInteraction = &zi
			cd.ZoneSizePct = (activeZone.Upper - activeZone.Lower) / activeZone.Lower * 100

			var pastZoneSizes []float64
			for _, mc := range moving {
				if mc.OpenTime < zoneOpenTime {
					if d := mc.Data(); d != nil && d.IsNewZone {
						pastZoneSizes = append(pastZoneSizes, d.ZoneSizePct)
					}
				}
			}
			if len(pastZoneSizes) > 3 {
				pastZoneSizes = pastZoneSizes[len(pastZoneSizes)-3:]
			}
			sizeSum := 0.0
			for _, v := range pastZoneSizes {
				sizeSum += v
			}
			cd.ExtraInfo = fmt.Sprintf("%.2f", sizeSum/3)
			cd.SpaceTakenInZoneLevel = SpaceTakenInZoneLevel(c, *activeZone)

			closeZoneDist = &CloseZoneDistance{
				Upper: absPctDistance(c.Close, activeZone.Upper),
				Mid:   absPctDistance(c.Close, activeZone.Mid),
				Lower: absPctDistance(c.Close, activeZone.Lower),
			}
		}

		// Lookback trend against a bias-aware base price 50 candles back.
		lStart := len(moving) - 50
		if lStart < 0 {
			lStart = 0
		}
		base := moving[lStart]
		baseSide := ""
		if d := base.Data(); d != nil {
			baseSide = d.Side
		}
		basePrice := base.Open
		if c.Close > base.Close {
			basePrice = base.Close
			if baseSide == "bull" {
				basePrice = base.Open
			}
		} else if baseSide == "bear" {
			basePrice = base.Close
		}
		lookbackChangePct := 0.0
		if basePrice != 0 {
			lookbackChangePct = (c.Close - basePrice) / basePrice * 100
		}
		cd.LookbackChangePct = lookbackChangePct

		tStart := len(moving) - 25
		if tStart < 0 {
			tStart = 0
		}
		var lookbackChanges []float64
		for _, mc := range moving[tStart:] {
			if d := mc.Data(); d != nil {
				lookbackChanges = append(lookbackChanges, d.LookbackChangePct)
			}
		}
		lookbackChanges = append(lookbackChanges, lookbackChangePct)
		cd.LookbackTrend = GetTrendDirection(lookbackChanges, lookbackChangePct)

		if prev.Status == StatusOpen {
			openPosition = s.managePosition(c, openPosition)
		} else if openPosition == nil &&
			prev.Support != nil && prev.Resistance != nil &&
			prev.Analyzed() && prev.Analytics.PriceZone != nil &&
			activeZone != nil {

			rctx := s.buildRuleContext(moving, c, prev, prev2, &cd, atr, *activeZone, activeZone, closeZoneDist)
			rctx.CloseATRAdjusted = closeATRAdjusted
			rctx.CloseATRAbsChange = closeATRAbsChange
			for _, rule := range s.Rules {
				rule.Apply(rctx)
			}

			if c.Side != "" {
				if err := s.openEntry(ctx, c, &cd, logger); err != nil {
					logger.Warn("entry pricing failed, skipping",
						zap.String("symbol", s.Symbol),
						zap.Int64("openTime", c.OpenTime),
						zap.Error(err))
				} else if c.Side != "" {
					openPosition = c
				}
			}
		}

		a := &Analytics{
			CandleData:        cd,
			ZoneAnalysis:      za,
			VolumeAnalysis:    va,
			OverState:         ob,
			PastVolume:        pastVol,
			PriceZone:         activeZone,
			ZoneInteraction:   zoneInteraction,
			CloseZoneDistance: closeZoneDist,
			CloseATRAdjusted:  closeATRAdjusted,
			CloseATRAbsChange: closeATRAbsChange,
		}
		if err := c.Annotate(a); err != nil {
			return err
		}
	}
	return nil
}

// managePosition evaluates an open position against the current candle's
// range. When both boundaries are crossed inside one candle the fill order is
// unknowable, so the position closes as MID with no PnL attribution. The
// terminal PnL lands on the entry candle.
func (s *Simulator) managePosition(c *CandleEntry, open *CandleEntry) *CandleEntry {
	if open == nil {
		return nil
	}
	open.Duration = float64(c.CloseTime-open.OpenTime) / (1000 * 60)

	exitSide := "BUY"
	hitSl := c.Low < open.SlPrice
	hitTp := c.High > open.TpPrice
	if open.Side == SideShort {
		exitSide = "SELL"
		hitSl = c.High > open.SlPrice
		hitTp = c.Low < open.TpPrice
	}

	switch {
	case hitSl && hitTp:
		c.Status = open.Side + "_" + OutcomeMid
		open.Status = OutcomeMid
		return nil
	case hitSl:
		c.Status = open.Side + "_" + OutcomeLoss
		open.Status = OutcomeLoss
		pct := PNLPercent(open.Close, open.SlPrice, exitSide, s.MaxLeverage)
		open.PnL = EstimatedPnL(open.Margin, pct, s.MaxLeverage)
		return nil
	case hitTp:
		c.Status = open.Side + "_" + OutcomeWon
		open.Status = OutcomeWon
		pct := PNLPercent(open.Close, open.TpPrice, exitSide, s.MaxLeverage)
		open.PnL = EstimatedPnL(open.Margin, pct, s.MaxLeverage)
		return nil
	default:
		c.Status = StatusOpen
		pct := PNLPercent(open.Close, c.Close, exitSide, s.MaxLeverage)
		open.PnL = EstimatedPnL(open.Margin, pct, s.MaxLeverage)
		return open
	}
}

// openEntry finalizes a rule-marked candle into an open position: default
// margin, collaborator TP/SL when the rule left them unset, leverage and the
// entry fee. The optional risk filter may still revert the whole entry.
func (s *Simulator) openEntry(ctx context.Context, c *CandleEntry, cd *CandleData, logger *zap.Logger) error {
	prevStatus := c.Status
	c.Status = StatusOpen

	orderSide := "SELL"
	if c.Side == SideLong {
		orderSide = "BUY"
	}

	if c.Margin == 0 {
		c.Margin = s.Margin
	}

	if c.TpPrice == 0 {
		if s.Pricer == nil {
			s.revertEntry(c, prevStatus)
			return fmt.Errorf("no pricer configured and rule %q left tpPrice unset", cd.ConditionMet)
		}
		tpSl, err := s.Pricer.CalculateTpSl(ctx, c.Margin, s.Symbol, orderSide, c.Close, s.TargetTpRoi, s.TargetSlRoi)
		if err != nil {
			s.revertEntry(c, prevStatus)
			return err
		}
		c.TpPrice = tpSl.TpPrice
		if c.SlPrice == 0 {
			c.SlPrice = tpSl.SlPrice
		}
	}

	c.Leverage = s.MaxLeverage
	c.EntryFee = TakerFee(c.Margin, s.MaxLeverage)

	if s.RiskFilter != nil {
		slPct := PNLPercent(c.Close, c.SlPrice, orderSide, s.MaxLeverage)
		slPnl := EstimatedPnL(c.Margin, slPct, s.MaxLeverage)
		if s.RiskFilter(c, slPnl) {
			s.revertEntry(c, prevStatus)
			c.Status = StatusIgnored
			cd.ConditionMet = "IGNORED"
			logger.Debug("entry rejected by risk filter",
				zap.String("symbol", s.Symbol),
				zap.Int64("openTime", c.OpenTime),
				zap.Float64("estimatedSlPnl", slPnl))
		}
	}
	return nil
}

func (s *Simulator) revertEntry(c *CandleEntry, prevStatus string) {
	c.Status = prevStatus
	c.Side = ""
	c.TpPrice = 0
	c.SlPrice = 0
	c.Leverage = 0
	c.EntryFee = 0
	c.Margin = 0
}

func (s *Simulator) buildRuleContext(
	moving []*CandleEntry,
	c, prev, prev2 *CandleEntry,
	cd *CandleData,
	atr float64,
	zone PriceZone,
	zonePtr *PriceZone,
	dist *CloseZoneDistance,
) *RuleContext {
	zStart := len(moving) - 24
	if zStart < 0 {
		zStart = 0
	}
	inhabitants := 1 // the current candle lives in the active zone
	for _, mc := range moving[zStart:] {
		if mc.Analyzed() && mc.Analytics.PriceZone == zonePtr {
			inhabitants++
		}
	}

	var zones []*PriceZone
	for _, mc := range moving {
		if d := mc.Data(); d != nil && d.IsNewZone {
			zones = append(zones, mc.Analytics.PriceZone)
		}
	}
	if cd.IsNewZone {
		zones = append(zones, zonePtr)
	}

	lowerEq := (zone.Lower + zone.Mid) / 2
	upperEq := (zone.Upper + zone.Mid) / 2
	lowerEq -= lowerEq * 0.0005
	upperEq -= upperEq * 0.0005

	rctx := &RuleContext{
		Entries:         moving,
		Candle:          c,
		Prev:            prev,
		Prev2:           prev2,
		Data:            cd,
		ATR:             atr,
		BaseMargin:      s.Margin,
		Zone:            zone,
		ZoneInhabitants: inhabitants,
		PriceZones:      zones,
		UpperEqualizer:  upperEq,
		LowerEqualizer:  lowerEq,
	}
	if dist != nil {
		rctx.DistToUpperPct = dist.Upper
		rctx.DistToMidPct = dist.Mid
		rctx.DistToLowerPct = dist.Lower
	}
	return rctx
}

func absPctDistance(price, boundary float64) float64 {
	if boundary == 0 {
		return 0
	}
	d := (price - boundary) / boundary * 100
	if d < 0 {
		return -d
	}
	return d
}
