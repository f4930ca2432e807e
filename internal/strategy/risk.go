package strategy

import (
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// DistanceType selects how a stop or target distance is measured
type DistanceType string

const (
	DistancePercent DistanceType = "percent"
	DistancePoints  DistanceType = "points"
	DistanceATR     DistanceType = "atr"
	DistanceRatio   DistanceType = "risk_reward"
)

// Valid reports whether t is a known distance type
func (t DistanceType) Valid() bool {
	switch t {
	case DistancePercent, DistancePoints, DistanceATR, DistanceRatio:
		return true
	}
	return false
}

// SizingMethod selects how position size is derived
type SizingMethod string

const (
	SizingFixed         SizingMethod = "fixed"
	SizingPercentEquity SizingMethod = "percent_equity"
	SizingRiskPercent   SizingMethod = "risk_percent"
)

// Valid reports whether m is a known sizing method
func (m SizingMethod) Valid() bool {
	switch m {
	case SizingFixed, SizingPercentEquity, SizingRiskPercent:
		return true
	}
	return false
}

// StopLoss closes a position once price moves Value against it
type StopLoss struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Type    DistanceType    `yaml:"type" json:"type"`
	Value   variables.Value `yaml:"value" json:"value"`
}

// TakeProfit closes a position once price moves Value in its favor.
// risk_reward targets are a multiple of the stop distance.
type TakeProfit struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Type    DistanceType    `yaml:"type" json:"type"`
	Value   variables.Value `yaml:"value" json:"value"`
}

// TrailingStop follows price at Distance, moving in increments of Step
type TrailingStop struct {
	Enabled  bool            `yaml:"enabled" json:"enabled"`
	Type     DistanceType    `yaml:"type" json:"type"`
	Distance variables.Value `yaml:"distance" json:"distance"`
	Step     variables.Value `yaml:"step" json:"step"`
}

// Breakeven moves the stop to entry plus Offset once profit reaches Trigger
type Breakeven struct {
	Enabled bool            `yaml:"enabled" json:"enabled"`
	Trigger variables.Value `yaml:"trigger" json:"trigger"`
	Offset  variables.Value `yaml:"offset" json:"offset"`
}

// PositionSizing decides how much to buy on entry
type PositionSizing struct {
	Method SizingMethod    `yaml:"method" json:"method"`
	Value  variables.Value `yaml:"value" json:"value"`
}

// RiskSettings groups every risk management block of a strategy
type RiskSettings struct {
	StopLoss       StopLoss       `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit     TakeProfit     `yaml:"take_profit" json:"take_profit"`
	TrailingStop   TrailingStop   `yaml:"trailing_stop" json:"trailing_stop"`
	Breakeven      Breakeven      `yaml:"breakeven" json:"breakeven"`
	PositionSizing PositionSizing `yaml:"position_sizing" json:"position_sizing"`
}

// DefaultPositionSizing is applied to new strategies and to documents
// written before position sizing existed
func DefaultPositionSizing() PositionSizing {
	return PositionSizing{Method: SizingPercentEquity, Value: variables.Scalar(10)}
}

// DefaultRiskSettings returns the risk block of a new strategy
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		StopLoss: StopLoss{
			Enabled: true,
			Type:    DistancePercent,
			Value:   variables.Scalar(2),
		},
		TakeProfit: TakeProfit{
			Enabled: true,
			Type:    DistancePercent,
			Value:   variables.Scalar(5),
		},
		TrailingStop: TrailingStop{
			Type:     DistancePercent,
			Distance: variables.Scalar(1.5),
			Step:     variables.Scalar(0.5),
		},
		Breakeven: Breakeven{
			Trigger: variables.Scalar(1),
			Offset:  variables.Scalar(0.1),
		},
		PositionSizing: DefaultPositionSizing(),
	}
}

// fields lists every numeric risk setting with its document path
func (r *RiskSettings) fields() []pathValue {
	return []pathValue{
		{"risk.stop_loss.value", &r.StopLoss.Value},
		{"risk.take_profit.value", &r.TakeProfit.Value},
		{"risk.trailing_stop.distance", &r.TrailingStop.Distance},
		{"risk.trailing_stop.step", &r.TrailingStop.Step},
		{"risk.breakeven.trigger", &r.Breakeven.Trigger},
		{"risk.breakeven.offset", &r.Breakeven.Offset},
		{"risk.position_sizing.value", &r.PositionSizing.Value},
	}
}

type pathValue struct {
	path  string
	value *variables.Value
}
