package optimization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// DefaultParallelism is the worker count used when none is configured
const DefaultParallelism = 4

// Progress is reported after every finished evaluation
type Progress struct {
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     uint64 `json:"total"`
}

// RunOptions configures one grid search
type RunOptions struct {
	Run        RunConfig
	Rank       RankOptions
	Objective  string
	OnProgress func(Progress)
}

// Summary is the outcome of a grid search
type Summary struct {
	StrategyID        string              `json:"strategy_id"`
	Objective         string              `json:"objective"`
	TotalCombinations uint64              `json:"total_combinations"`
	Evaluated         int                 `json:"evaluated"`
	Failed            int                 `json:"failed"`
	Truncated         bool                `json:"truncated"`
	Warnings          []variables.Warning `json:"warnings,omitempty"`
	Results           []Result            `json:"results"`
	Best              *Result             `json:"best,omitempty"`
	StartedAt         time.Time           `json:"started_at"`
	Duration          time.Duration       `json:"duration"`
}

// Top returns at most n ranked results
func (s *Summary) Top(n int) []Result {
	out := make([]Result, 0, n)
	for _, r := range s.Results {
		if len(out) == n || r.Rank == 0 {
			break
		}
		out = append(out, r)
	}
	return out
}

// Runner streams assignments from the enumerator to a bounded pool of
// evaluations
type Runner struct {
	evaluator Evaluator
	parallel  int
	limiter   *rate.Limiter
}

// NewRunner creates a runner. ratePerSecond <= 0 disables rate limiting.
func NewRunner(evaluator Evaluator, parallel int, ratePerSecond float64, burst int) *Runner {
	if parallel <= 0 {
		parallel = DefaultParallelism
	}
	r := &Runner{evaluator: evaluator, parallel: parallel}
	if ratePerSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return r
}

// Parallelism returns the worker count
func (r *Runner) Parallelism() int {
	return r.parallel
}

// Run evaluates every assignment of cfg against s. Evaluation errors are
// recorded on their result and do not stop the run. When ctx is cancelled,
// dispatch stops and the partial summary is returned together with the
// context error.
func (r *Runner) Run(ctx context.Context, s *strategy.Strategy, cfg Config, opts RunOptions) (*Summary, error) {
	if s == nil {
		return nil, errors.New("strategy is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid optimization config: %w", err)
	}
	if err := cfg.CheckEligible(s.Lookup()); err != nil {
		return nil, fmt.Errorf("invalid optimization config: %w", err)
	}
	if !opts.Rank.Policy.Valid() {
		return nil, fmt.Errorf("invalid min trades policy %q", opts.Rank.Policy)
	}
	if opts.Rank.Scorer == nil {
		scorer, err := ScorerByName(opts.Objective)
		if err != nil {
			return nil, err
		}
		opts.Rank.Scorer = scorer
	}
	if opts.Objective == "" {
		opts.Objective = DefaultObjective
	}

	startTime := time.Now()
	base := s.DeepCopy()

	enum := NewEnumerator(cfg)
	summary := &Summary{
		StrategyID:        base.Metadata.ID,
		Objective:         opts.Objective,
		TotalCombinations: enum.Total(),
		Truncated:         enum.Truncated(),
		StartedAt:         startTime,
	}
	metrics.RecordSearchSpace(summary.TotalCombinations, summary.Truncated)

	log.Info().
		Str("strategy_id", summary.StrategyID).
		Uint64("combinations", summary.TotalCombinations).
		Uint64("evaluating", enum.Len()).
		Bool("truncated", summary.Truncated).
		Int("parallel", r.parallel).
		Msg("Starting grid search optimization")

	var (
		mu       sync.Mutex
		results  = make([]Result, 0, min(enum.Len(), preallocLimit))
		warnings = make(map[string]variables.Warning)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	var dispatchErr error
	for {
		if err := gctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		idx := enum.Index()
		a, ok := enum.Next()
		if !ok {
			break
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(gctx); err != nil {
				dispatchErr = err
				break
			}
		}

		g.Go(func() error {
			res, warns := r.evaluate(gctx, base, idx, a, opts.Run)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			for _, w := range warns {
				warnings[w.Path] = w
			}
			if res.Failed() {
				summary.Failed++
			} else {
				summary.Evaluated++
			}
			completed := summary.Evaluated + summary.Failed
			if opts.OnProgress != nil {
				opts.OnProgress(Progress{Completed: completed, Failed: summary.Failed, Total: enum.Len()})
			}
			if completed%10 == 0 || uint64(completed) == enum.Len() {
				log.Info().
					Int("completed", completed).
					Uint64("total", enum.Len()).
					Msgf("Grid search progress: %.1f%%", float64(completed)/float64(enum.Len())*100)
			}
			return nil
		})
	}
	_ = g.Wait() // workers record their errors on the result

	summary.Results = Rank(results, opts.Rank)
	summary.Best = Best(summary.Results)
	summary.Warnings = sortedWarnings(warnings)
	summary.Duration = time.Since(startTime)

	if dispatchErr == nil {
		dispatchErr = ctx.Err()
	}
	if dispatchErr != nil {
		log.Warn().
			Err(dispatchErr).
			Int("evaluated", summary.Evaluated).
			Int("failed", summary.Failed).
			Msg("Grid search stopped before completion")
		return summary, dispatchErr
	}

	event := log.Info().
		Int("evaluated", summary.Evaluated).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration)
	if summary.Best != nil {
		event = event.Float64("best_score", summary.Best.Score).Str("best_assignment", summary.Best.Assignment.String())
	}
	event.Msg("Grid search optimization complete")

	return summary, nil
}

func (r *Runner) evaluate(ctx context.Context, base *strategy.Strategy, idx int, a Assignment, run RunConfig) (Result, []variables.Warning) {
	res := Result{Index: idx, Assignment: a}

	concrete, warns, err := base.Concretize(a)
	if err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).Int("index", idx).Msg("Failed to concretize strategy")
		return res, nil
	}

	m, err := r.evaluator.Evaluate(ctx, concrete, run)
	if err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).Int("index", idx).Str("assignment", a.String()).Msg("Backtest failed")
		return res, warns
	}
	if m == nil {
		res.Error = "backtest returned no metrics"
		return res, warns
	}
	res.Metrics = m
	return res, warns
}

func sortedWarnings(byPath map[string]variables.Warning) []variables.Warning {
	if len(byPath) == 0 {
		return nil
	}
	out := make([]variables.Warning, 0, len(byPath))
	for _, w := range byPath {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
