package optimization

import (
	"context"
	"time"

	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// Metrics is the performance record the backtest engine returns for one
// concrete strategy
type Metrics struct {
	// Returns
	TotalReturn      float64 `json:"total_return"`      // Total profit/loss
	TotalReturnPct   float64 `json:"total_return_pct"`  // Total return percentage
	AnnualizedReturn float64 `json:"annualized_return"` // Annualized return percentage

	// Risk metrics
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"` // CAGR / Max Drawdown

	// Trade statistics
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // Percentage of winning trades
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	ProfitFactor  float64 `json:"profit_factor"` // Total profit / Total loss
	Expectancy    float64 `json:"expectancy"`

	FinalEquity float64 `json:"final_equity"`
}

// RunConfig is the market context a backtest is evaluated against
type RunConfig struct {
	Symbol         string    `json:"symbol" yaml:"symbol"`
	Timeframe      string    `json:"timeframe" yaml:"timeframe"`
	Start          time.Time `json:"start" yaml:"start"`
	End            time.Time `json:"end" yaml:"end"`
	InitialCapital float64   `json:"initial_capital" yaml:"initial_capital"`
	CommissionRate float64   `json:"commission_rate,omitempty" yaml:"commission_rate,omitempty"`
}

// Evaluator runs one fully scalar strategy and returns its metrics
type Evaluator interface {
	Evaluate(ctx context.Context, s *strategy.Strategy, run RunConfig) (*Metrics, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, s *strategy.Strategy, run RunConfig) (*Metrics, error)

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(ctx context.Context, s *strategy.Strategy, run RunConfig) (*Metrics, error) {
	return f(ctx, s, run)
}

// Result is the outcome of evaluating one assignment
type Result struct {
	Index      int        `json:"index"`
	Assignment Assignment `json:"assignment"`
	Metrics    *Metrics   `json:"metrics,omitempty"`
	Error      string     `json:"error,omitempty"`
	Score      float64    `json:"score"`
	Rank       int        `json:"rank"`
	Excluded   bool       `json:"excluded"`
	Penalized  bool       `json:"penalized,omitempty"`
}

// Failed reports whether the evaluation produced no metrics
func (r Result) Failed() bool {
	return r.Metrics == nil
}
