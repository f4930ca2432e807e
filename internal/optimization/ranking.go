package optimization

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ============================================================================
// SCORING
// ============================================================================

// Scorer turns a metrics record into a single ranking number. Implementations
// must be pure: identical metrics always give identical scores.
type Scorer interface {
	Score(m *Metrics) float64
}

// ObjectiveFunction calculates a fitness score from backtest metrics
type ObjectiveFunction func(*Metrics) float64

// Score calls f
func (f ObjectiveFunction) Score(m *Metrics) float64 {
	return f(m)
}

// Predefined objective functions
var (
	// MaximizeSharpeRatio optimizes for risk-adjusted returns
	MaximizeSharpeRatio ObjectiveFunction = func(m *Metrics) float64 {
		return m.SharpeRatio
	}

	// MaximizeSortinoRatio optimizes for downside risk-adjusted returns
	MaximizeSortinoRatio ObjectiveFunction = func(m *Metrics) float64 {
		return m.SortinoRatio
	}

	// MaximizeCalmarRatio optimizes for return/max drawdown
	MaximizeCalmarRatio ObjectiveFunction = func(m *Metrics) float64 {
		return m.CalmarRatio
	}

	// MaximizeTotalReturn optimizes for absolute returns
	MaximizeTotalReturn ObjectiveFunction = func(m *Metrics) float64 {
		return m.TotalReturnPct
	}

	// MaximizeProfitFactor optimizes for profit/loss ratio
	MaximizeProfitFactor ObjectiveFunction = func(m *Metrics) float64 {
		return m.ProfitFactor
	}

	// MinimizeDrawdown optimizes for low drawdown
	MinimizeDrawdown ObjectiveFunction = func(m *Metrics) float64 {
		return -m.MaxDrawdownPct
	}

	// BalancedObjective weighs 40% Sharpe, 30% win rate, 30% Calmar
	BalancedObjective ObjectiveFunction = func(m *Metrics) float64 {
		sharpe := math.Max(0, m.SharpeRatio)
		winRate := m.WinRate / 100.0
		calmar := math.Max(0, m.CalmarRatio)
		return 0.4*sharpe + 0.3*winRate + 0.3*calmar
	}
)

// CompositeScorer blends win rate, capped profit factor and inverse drawdown,
// each normalized to [0,1]
type CompositeScorer struct {
	WinRateWeight      float64 `json:"win_rate_weight"`
	ProfitFactorWeight float64 `json:"profit_factor_weight"`
	DrawdownWeight     float64 `json:"drawdown_weight"`
	ProfitFactorCap    float64 `json:"profit_factor_cap"`
}

// DefaultCompositeScorer weighs 0.4 win rate, 0.4 profit factor (capped at 3)
// and 0.2 drawdown
func DefaultCompositeScorer() CompositeScorer {
	return CompositeScorer{
		WinRateWeight:      0.4,
		ProfitFactorWeight: 0.4,
		DrawdownWeight:     0.2,
		ProfitFactorCap:    3,
	}
}

// Score implements Scorer
func (c CompositeScorer) Score(m *Metrics) float64 {
	pfCap := c.ProfitFactorCap
	if pfCap <= 0 {
		pfCap = 1
	}
	winRate := clamp(m.WinRate, 0, 100) / 100
	profitFactor := clamp(m.ProfitFactor, 0, pfCap) / pfCap
	drawdown := 1 - clamp(m.MaxDrawdownPct, 0, 100)/100
	return c.WinRateWeight*winRate + c.ProfitFactorWeight*profitFactor + c.DrawdownWeight*drawdown
}

// clamp maps NaN to lo
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultObjective is the scorer used when none is named
const DefaultObjective = "composite"

var objectives = map[string]Scorer{
	DefaultObjective: DefaultCompositeScorer(),
	"sharpe":         MaximizeSharpeRatio,
	"sortino":        MaximizeSortinoRatio,
	"calmar":         MaximizeCalmarRatio,
	"total_return":   MaximizeTotalReturn,
	"profit_factor":  MaximizeProfitFactor,
	"min_drawdown":   MinimizeDrawdown,
	"balanced":       BalancedObjective,
}

// Objectives lists the scorer names ScorerByName accepts
func Objectives() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScorerByName resolves an objective name. An empty name selects the
// composite scorer.
func ScorerByName(name string) (Scorer, error) {
	if name == "" {
		name = DefaultObjective
	}
	s, ok := objectives[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q (available: %s)", name, strings.Join(Objectives(), ", "))
	}
	return s, nil
}

// ============================================================================
// RANKING
// ============================================================================

// MinTradesPolicy decides what happens to results below RankOptions.MinTrades
type MinTradesPolicy string

const (
	// PolicyExclude drops thin samples from the ranking
	PolicyExclude MinTradesPolicy = "exclude"
	// PolicyPenalize ranks thin samples after every qualifying result
	PolicyPenalize MinTradesPolicy = "penalize"
)

// Valid reports whether p is a known policy. Empty means exclude.
func (p MinTradesPolicy) Valid() bool {
	return p == "" || p == PolicyExclude || p == PolicyPenalize
}

// RankOptions configures Rank
type RankOptions struct {
	Scorer    Scorer          `json:"-"`
	MinTrades int             `json:"min_trades"`
	Policy    MinTradesPolicy `json:"policy"`
}

// DefaultRankOptions uses the composite scorer, excluding nothing
func DefaultRankOptions() RankOptions {
	return RankOptions{Scorer: DefaultCompositeScorer(), Policy: PolicyExclude}
}

// Rank scores every result and returns them best first. Ranked results carry
// 1-based ranks; excluded and failed results follow with rank 0. Ties are
// broken by enumeration index, so the order does not depend on the order
// results completed in. The input slice is not modified.
func Rank(results []Result, opts RankOptions) []Result {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = DefaultCompositeScorer()
	}

	ranked := make([]Result, 0, len(results))
	var excluded []Result
	for _, r := range results {
		r.Rank = 0
		r.Excluded = false
		r.Penalized = false
		r.Score = 0

		if r.Failed() {
			r.Excluded = true
			excluded = append(excluded, r)
			continue
		}

		r.Score = finite(scorer.Score(r.Metrics))
		if r.Metrics.TotalTrades < opts.MinTrades {
			if opts.Policy == PolicyPenalize {
				r.Penalized = true
			} else {
				r.Excluded = true
				excluded = append(excluded, r)
				continue
			}
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Penalized != b.Penalized {
			return !a.Penalized
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Index < b.Index
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	sort.SliceStable(excluded, func(i, j int) bool {
		return excluded[i].Index < excluded[j].Index
	})
	return append(ranked, excluded...)
}

// Best returns the top ranked result, or nil when nothing qualified
func Best(ranked []Result) *Result {
	if len(ranked) == 0 || ranked[0].Rank != 1 {
		return nil
	}
	best := ranked[0]
	return &best
}

// finite keeps scores JSON-encodable: NaN sorts last, infinities clamp
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, -1):
		return -math.MaxFloat64
	case math.IsInf(v, 1):
		return math.MaxFloat64
	}
	return v
}
