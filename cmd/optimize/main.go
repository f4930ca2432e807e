// Optimize CLI
// Grid-searches the variables of a strategy file against the backtest engine
// and prints the ranked combinations
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/report"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

type options struct {
	configPath string
	envFile    string

	// Search space
	strategyPath    string
	maxCombinations int
	dryRun          bool

	// Backtest context
	symbol     string
	timeframe  string
	start      string
	end        string
	capital    float64
	commission float64

	// Ranking
	objective string
	minTrades int
	policy    string

	// Output
	top      int
	xlsxPath string
	verbose  bool
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	fs.SetOutput(errOut)

	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./config.yaml or ./configs/config.yaml)")
	fs.StringVar(&opts.envFile, "env", ".env", "Env file loaded before the config")

	fs.StringVar(&opts.strategyPath, "strategy", "", "Strategy file (YAML or JSON)")
	fs.IntVar(&opts.maxCombinations, "max", 0, "Maximum combinations to evaluate (0 uses engine.max_combinations)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the search space and exit")

	fs.StringVar(&opts.symbol, "symbol", "BTC/USDT", "Symbol to backtest")
	fs.StringVar(&opts.timeframe, "timeframe", "1h", "Candle timeframe")
	fs.StringVar(&opts.start, "start", "", "Start date (YYYY-MM-DD)")
	fs.StringVar(&opts.end, "end", "", "End date (YYYY-MM-DD)")
	fs.Float64Var(&opts.capital, "capital", 10000.0, "Initial capital in USD")
	fs.Float64Var(&opts.commission, "commission", 0.001, "Commission rate (0.001 = 0.1%)")

	fs.StringVar(&opts.objective, "objective", "", "Ranking objective (default: optimizer.objective)")
	fs.IntVar(&opts.minTrades, "min-trades", -1, "Minimum trades for a result to rank (default: optimizer.min_trades)")
	fs.StringVar(&opts.policy, "policy", string(optimization.PolicyExclude), "Treatment of results below -min-trades (exclude, penalize)")

	fs.IntVar(&opts.top, "top", 10, "Rows to print (0 prints every ranked result)")
	fs.StringVar(&opts.xlsxPath, "xlsx", "", "Write the full report to this Excel file")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.strategyPath == "" {
		return opts, errors.New("-strategy flag is required")
	}
	if opts.maxCombinations < 0 {
		return opts, fmt.Errorf("-max must not be negative, got %d", opts.maxCombinations)
	}
	if opts.top < 0 {
		return opts, fmt.Errorf("-top must not be negative, got %d", opts.top)
	}
	if !optimization.MinTradesPolicy(opts.policy).Valid() {
		return opts, fmt.Errorf("invalid -policy %q", opts.policy)
	}
	return opts, nil
}

// ============================================================================
// MAIN
// ============================================================================

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	envErr := loadEnvFile(opts.envFile)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.App.LogLevel
	if opts.verbose {
		level = "debug"
	}
	config.InitLoggerTo(os.Stderr, level, "console")
	if envErr != nil {
		log.Debug().Err(envErr).Msg("No env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		log.Error().Err(err).Msg("Optimization failed")
		stop()
		os.Exit(1)
	}
}

// ============================================================================
// OPTIMIZATION
// ============================================================================

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	s, err := strategy.ImportFromFile(opts.strategyPath, strategy.ImportOptions{
		ValidateStrict: true,
		MaxVariables:   cfg.Engine.MaxVariables,
	})
	if err != nil {
		return err
	}

	limit := opts.maxCombinations
	if limit == 0 {
		limit = cfg.Engine.MaxCombinations
	}
	space := optimization.ConfigFromRegistry(s.Lookup(), limit)

	log.Info().
		Str("strategy", s.Metadata.Name).
		Int("variables", len(space.Variables)).
		Uint64("combinations", optimization.CountCombinations(space)).
		Int("max", limit).
		Msg("Search space built")

	if len(space.Variables) == 0 {
		log.Warn().Msg("Strategy has no optimizable variables, evaluating it as is")
	}

	report.WriteSpace(out, space)
	if warning := optimization.NewEnumerator(space).Warning(); warning != nil {
		fmt.Fprintf(out, "warning: %v\n", warning)
	}

	if opts.dryRun {
		return nil
	}

	runCfg, err := runConfig(opts)
	if err != nil {
		return err
	}

	objective := opts.objective
	if objective == "" {
		objective = cfg.Optimizer.Objective
	}
	minTrades := opts.minTrades
	if minTrades < 0 {
		minTrades = cfg.Optimizer.MinTrades
	}

	evaluator, closeEvaluator, err := newEvaluator(cfg)
	if err != nil {
		return err
	}
	defer closeEvaluator()

	runner := optimization.NewRunner(evaluator, cfg.Optimizer.Parallelism, cfg.Optimizer.RatePerSecond, cfg.Optimizer.Burst)

	summary, runErr := runner.Run(ctx, s, space, optimization.RunOptions{
		Run:       runCfg,
		Objective: objective,
		Rank: optimization.RankOptions{
			MinTrades: minTrades,
			Policy:    optimization.MinTradesPolicy(opts.policy),
		},
		OnProgress: func(p optimization.Progress) {
			log.Debug().
				Int("completed", p.Completed).
				Int("failed", p.Failed).
				Uint64("total", p.Total).
				Msg("Progress")
		},
	})
	if summary == nil {
		return runErr
	}
	if runErr != nil {
		log.Warn().Err(runErr).Int("evaluated", summary.Evaluated).Msg("Run interrupted, reporting partial results")
	}

	rep := report.FromSummary(s.Metadata.Name, space, summary)
	report.WriteTable(out, rep, opts.top)

	if opts.xlsxPath != "" {
		if err := report.WriteWorkbook(opts.xlsxPath, rep); err != nil {
			return errors.Join(runErr, err)
		}
		log.Info().Str("path", opts.xlsxPath).Msg("Workbook written")
	}

	log.Info().
		Int("evaluated", summary.Evaluated).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Optimization completed")

	return runErr
}

func runConfig(opts options) (optimization.RunConfig, error) {
	rc := optimization.RunConfig{
		Symbol:         opts.symbol,
		Timeframe:      opts.timeframe,
		InitialCapital: opts.capital,
		CommissionRate: opts.commission,
	}
	if rc.Symbol == "" {
		return rc, errors.New("-symbol must not be empty")
	}
	if rc.InitialCapital <= 0 {
		return rc, fmt.Errorf("-capital must be positive, got %v", rc.InitialCapital)
	}

	var err error
	if opts.start != "" {
		if rc.Start, err = time.Parse(time.DateOnly, opts.start); err != nil {
			return rc, fmt.Errorf("invalid start date format (use YYYY-MM-DD): %w", err)
		}
	}
	if opts.end != "" {
		if rc.End, err = time.Parse(time.DateOnly, opts.end); err != nil {
			return rc, fmt.Errorf("invalid end date format (use YYYY-MM-DD): %w", err)
		}
	}
	if !rc.Start.IsZero() && !rc.End.After(rc.Start) {
		return rc, errors.New("-end must be after -start")
	}
	return rc, nil
}

// newEvaluator connects the engine client, fronted by the Redis metrics
// cache when one is configured
func newEvaluator(cfg *config.Config) (optimization.Evaluator, func(), error) {
	engine, err := backtest.NewClient(backtest.ClientConfigFrom(cfg.Backtest))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create backtest engine client: %w", err)
	}

	if !cfg.Redis.Enabled {
		return backtest.NewCachedEvaluator(engine, nil), func() {}, nil
	}

	client := redis.NewClient(cfg.Redis.Options())
	cache := backtest.NewMetricsCache(client, cfg.Redis.TTL)
	closeFn := func() {
		log.Debug().Float64("hit_rate", cache.HitRate()).Msg("Metrics cache closed")
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
	return backtest.NewCachedEvaluator(engine, cache), closeFn, nil
}

// loadEnvFile loads KEY=VALUE pairs into the environment without overriding
// variables that are already set
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("env file %s not found", path)
	}
	return godotenv.Load(path)
}
