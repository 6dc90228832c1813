package engine

import "fmt"

// Position sides as stored on a candle entry. Empty string means flat.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Entry statuses. A status with a side prefix is terminal.
const (
	StatusOpen      = "OPEN"
	StatusZoneStart = "ZONE_START"
	StatusIgnored   = "IGNORED"
)

// Terminal outcome suffixes appended to the side, e.g. "LONG_WON".
const (
	OutcomeWon  = "WON"
	OutcomeLoss = "LOSS"
	OutcomeMid  = "MID"
)

// Candle is a single immutable OHLCV observation.
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
	Closed    bool    `json:"closed"`
}

// PriceZone is a price band. Mid may be left 0 by constructors that never
// consume it; callers recompute (upper+lower)/2 before relying on it.
type PriceZone struct {
	Lower float64 `json:"lower"`
	Mid   float64 `json:"mid"`
	Upper float64 `json:"upper"`
}

// Height returns upper-lower.
func (z PriceZone) Height() float64 { return z.Upper - z.Lower }

// Midpoint returns Mid, recomputing it when the constructor left the 0
// sentinel in place.
func (z PriceZone) Midpoint() float64 {
	if z.Mid == 0 {
		return (z.Upper + z.Lower) / 2
	}
	return z.Mid
}

// Contains reports whether p sits strictly inside the band.
func (z PriceZone) Contains(p float64) bool { return p > z.Lower && p < z.Upper }

// CloseZoneDistance holds |close-boundary|/boundary percentages against the
// active session zone.
type CloseZoneDistance struct {
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Lower float64 `json:"lower"`
}

// CandleData is the feature-extractor output for one candle.
type CandleData struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	OpenTime  int64   `json:"openTime"`
	Volume    float64 `json:"volume"`
	VolumeChangePct float64 `json:"volumeChangePct"`

	BodyPct       float64 `json:"bodyPct"`
	TopWickPct    float64 `json:"topWickPct"`
	BottomWickPct float64 `json:"bottomWickPct"`
	StrengthPct   float64 `json:"strengthPct"`
	ChangePct     float64 `json:"changePct"`
	Side          string  `json:"side"` // "bull" | "bear"
	IsIndecisive  bool    `json:"isIndecisive"`

	// Previous holds the feature data of up to N preceding candles, one
	// recursion level deep.
	Previous []CandleData `json:"previous,omitempty"`

	EMA200                  float64 `json:"ema200"`
	ATR                     float64 `json:"atr"`
	VolumeSpike             bool    `json:"volumeSpike"`
	PriceMove               string  `json:"priceMove"` // shoots_up | dragged_down | normal
	OverState               string  `json:"overState"` // overbought | oversold | ""
	PastCandleAverageChange float64 `json:"pastCandleAverageChange"`

	IsNewZone             bool    `json:"isNewZone"`
	ZoneInhabitantCount   int     `json:"zoneInhabitantCount"`
	ZoneSizePct           float64 `json:"zoneSizePct"`
	SpaceTakenInZoneLevel float64 `json:"spaceTakenInZoneLevel"`

	LookbackChangePct float64 `json:"lookbackChangePct"`
	LookbackTrend     string  `json:"lookbackTrend"`

	PastZoneOverStateReaction string `json:"pastZoneOverStateReaction"`

	IsLongPotential  bool   `json:"isLongPotential"`
	IsShortPotential bool   `json:"isShortPotential"`
	ConditionMet     string `json:"conditionMet"`
	ExtraInfo        string `json:"extraInfo"`
}

// VolumeAnalysis is the volume/momentum analyzer output for one candle.
type VolumeAnalysis struct {
	TotalVolume        float64 `json:"totalVolume"`
	BuyVolume          float64 `json:"buyVolume"`
	SellVolume         float64 `json:"sellVolume"`
	DeltaVolume        float64 `json:"deltaVolume"`
	DeltaRatio         float64 `json:"deltaRatio"`
	AvgVolumeLookback  float64 `json:"avgVolumeLookback"`
	ZScore             float64 `json:"zScore"`
	SpikeFlag          bool    `json:"spikeFlag"`
	AbsorptionIndex    float64 `json:"absorptionIndex"`
	DeltaAlignment     bool    `json:"deltaAlignment"`
	CorrVolumeMomentum float64 `json:"corrVolumeMomentum"`
	VWAP               float64 `json:"vwap"`
	VWAPDeviationPct   float64 `json:"vwapDeviationPct"`
	VolumePressure     float64 `json:"volumePressure"`
}

// OverboughtOversoldAnalysis scores trend exhaustion on a -100..+100 scale.
type OverboughtOversoldAnalysis struct {
	ExtremeLevel         string   `json:"extremeLevel"`
	Score                float64  `json:"score"`
	Signals              []string `json:"signals"`
	Confidence           float64  `json:"confidence"`
	RejectionProbability float64  `json:"rejectionProbability"`
}

// PastVolumeAnalysis summarizes the volume regime leading into a candle.
type PastVolumeAnalysis struct {
	PastAvgVolume     float64 `json:"pastAvgVolume"`
	VolumeTrend       string  `json:"volumeTrend"` // increasing | decreasing | stable | none
	SpikeFlag         bool    `json:"spikeFlag"`
	DominantDirection string  `json:"dominantDirection"` // bull | bear | mixed
}

// ZoneAnalysis is the zone-relative analysis of one candle against a
// support or resistance band.
type ZoneAnalysis struct {
	PriceProximityCloseToZone float64 `json:"priceProximityCloseToZone"`
	PastInteractionsToZone    int     `json:"pastInteractionsToZone"`
	PastTrend                 string  `json:"pastTrend"` // bullish | bearish | sideways
	Momentum                  float64 `json:"momentum"`
	ZoneWidth                 float64 `json:"zoneWidth"`
	ZoneType                  string  `json:"zoneType"` // support | resistance
	ZoneStrength              float64 `json:"zoneStrength"`
	ZoneTouchDetected         bool    `json:"zoneTouchDetected"`
	ReactionVelocity          float64 `json:"reactionVelocity"`
	VolumeConfluence          float64 `json:"volumeConfluence"`
	CurrentCandleReversal     bool    `json:"currentCandleReversal"`
	VolatilityScore           float64 `json:"volatilityScore"`
	ProximityScore            float64 `json:"proximityScore"`
	ProximityConfidence       float64 `json:"proximityConfidence"`
	SignalConfidence          float64 `json:"signalConfidence"`
	InteractionStrength       float64 `json:"interactionStrength"`
	MomentumStrength          float64 `json:"momentumStrength"`
	TimeInZoneMs              float64 `json:"timeInZoneMs"`
	BreakoutProbability       float64 `json:"breakoutProbability"`
	OverallBias               string  `json:"overallBias"` // long | short | neutral
	PastResistanceBreakCount  int     `json:"pastResistanceBreakCount"`
	PastSupportBreakCount     int     `json:"pastSupportBreakCount"`
}

// BreakoutStartScore grades the first candle that closes outside the active
// zone. Sub-scores sum into a 0-85 composite.
type BreakoutStartScore struct {
	MomentumScore       float64 `json:"momentumScore"`       // 0-25
	SustainabilityScore float64 `json:"sustainabilityScore"` // 0-25
	VolumeProfile       float64 `json:"volumeProfile"`       // 0-20
	RejectionStrength   float64 `json:"rejectionStrength"`   // 0-15
	CompositeScore      float64 `json:"compositeScore"`
	Recommendation      string  `json:"recommendation"` // strong_buy | moderate_buy | weak_buy | skip
}

// PriceZoneInteraction summarizes how price behaved around the active session
// zone over a trailing window.
type PriceZoneInteraction struct {
	TouchCount            int     `json:"touchCount"`
	BounceCount           int     `json:"bounceCount"`
	BreakoutCount         int     `json:"breakoutCount"`
	TimeInZone            int     `json:"timeInZone"`
	TimeOutsideZone       int     `json:"timeOutsideZone"`
	AvgDistanceFromCenter float64 `json:"avgDistanceFromCenter"`
	ExtremePoint          string  `json:"extremePoint"` // upper | lower | ""
	StrengthScore         float64 `json:"strengthScore"`
	LastInteraction       string  `json:"lastInteraction"` // touch | bounce | breakout | ""
	VolatilityInZone      float64 `json:"volatilityInZone"`
	VolatilityOutsideZone float64 `json:"volatilityOutsideZone"`
	VolatilityRatio       float64 `json:"volatilityRatio"`
	BreakoutVelocity      float64 `json:"breakoutVelocity"`
	ApproachVelocity      float64 `json:"approachVelocity"`
	MomentumOnBreakout    string  `json:"momentumOnBreakout"` // strong | moderate | weak | ""
	PressureDirection     string  `json:"pressureDirection"`  // bullish | bearish | neutral
	DistanceToMid         string  `json:"distanceToMid"`      // very_close | close | mid | far
	LastBreakoutChange    float64 `json:"lastBreakoutChange"`
	BreakoutType          string  `json:"breakoutType"` // breakout_start | breakout_cont | ""
	BreakoutStartScore    *BreakoutStartScore `json:"breakoutStartScore,omitempty"`
}

// Analytics bundles every analyzer output for one candle. An entry carries
// either no analytics at all or a fully populated set, so downstream code
// never observes a partially computed state. Zone-scoped fields are nil for
// candles that precede the first session zone.
type Analytics struct {
	CandleData         CandleData                 `json:"candleData"`
	ZoneAnalysis       ZoneAnalysis               `json:"zoneAnalysis"`
	VolumeAnalysis     VolumeAnalysis             `json:"volumeAnalysis"`
	OverState          OverboughtOversoldAnalysis `json:"overState"`
	PastVolume         PastVolumeAnalysis         `json:"pastVolume"`
	PriceZone          *PriceZone                 `json:"priceZone,omitempty"`
	ZoneInteraction    *PriceZoneInteraction      `json:"zoneInteraction,omitempty"`
	CloseZoneDistance  *CloseZoneDistance         `json:"closeZoneDistance,omitempty"`
	CloseATRAdjusted   float64                    `json:"closeAtrAdjusted"`
	CloseATRAbsChange  float64                    `json:"closeAtrAbsChange"`
}

// CandleEntry is one candle of a backtest series plus its frozen annotations
// and position bookkeeping. Analytics are write-once; the only field that
// legitimately mutates after annotation is PnL (mark-to-market while a
// position is open) plus the position lifecycle fields themselves.
type CandleEntry struct {
	Candle
	Symbol string `json:"symbol"`

	// Support/resistance snapshots frozen at initialization time.
	Support               *PriceZone `json:"support"`
	Resistance            *PriceZone `json:"resistance"`
	BreakthroughResistance bool      `json:"breakthroughResistance"`
	BreakthroughSupport    bool      `json:"breakthroughSupport"`

	Analytics *Analytics `json:"analytics"`

	// Position state.
	Status   string  `json:"status"`
	Side     string  `json:"side"`
	TpPrice  float64 `json:"tpPrice"`
	SlPrice  float64 `json:"slPrice"`
	Margin   float64 `json:"margin"`
	Leverage float64 `json:"leverage"`
	EntryFee float64 `json:"entryFee"`
	PnL      float64 `json:"pnl"`
	Duration float64 `json:"duration"` // minutes the position was held
}

// Annotate attaches the analytics set exactly once.
func (e *CandleEntry) Annotate(a *Analytics) error {
	if e.Analytics != nil {
		return fmt.Errorf("candle %d already annotated", e.OpenTime)
	}
	e.Analytics = a
	return nil
}

// Analyzed reports whether the entry carries a full analytics set.
func (e *CandleEntry) Analyzed() bool { return e.Analytics != nil }

// Data is a nil-safe accessor for the entry's feature data.
func (e *CandleEntry) Data() *CandleData {
	if e.Analytics == nil {
		return nil
	}
	return &e.Analytics.CandleData
}

// NewEntries wraps raw candles into backtest entries for a symbol.
func NewEntries(symbol string, candles []Candle) []*CandleEntry {
	entries := make([]*CandleEntry, len(candles))
	for i, c := range candles {
		entries[i] = &CandleEntry{Candle: c, Symbol: symbol}
	}
	return entries
}
