// Package optimize searches a strategy's parameter space with walk-forward
// validation. Each candidate is scored on an out-of-sample test segment
// separated from the training segment by an embargo gap, and penalized for
// the spread between in-sample and out-of-sample performance.
package optimize

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-trader/internal/backtest"
	"signal-trader/internal/config"
	"signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/internal/predict"
)

// Overfit score buckets.
const (
	BucketLow      = "low"      // < 20
	BucketModerate = "moderate" // 20..40
	BucketHigh     = "high"     // > 40
)

// Candidate is one evaluated parameter combination.
type Candidate struct {
	ID           string         `json:"id"`
	Params       predict.Params `json:"params"`
	TrainMetric  float64        `json:"train_metric"`
	TestMetric   float64        `json:"test_metric"`
	OverfitScore float64        `json:"overfit_score"`
	Bucket       string         `json:"bucket"`
	TrainTrades  int            `json:"train_trades"`
	TestTrades   int            `json:"test_trades"`
	Err          string         `json:"error,omitempty"`
}

// Report is the artifact of an optimization run.
type Report struct {
	RunID      string        `json:"run_id"`
	Symbol     string        `json:"symbol"`
	Strategy   string        `json:"strategy"`
	Method     string        `json:"method"`
	Metric     string        `json:"metric"`
	TrainStart time.Time     `json:"train_start"`
	TrainEnd   time.Time     `json:"train_end"`
	TestStart  time.Time     `json:"test_start"`
	TestEnd    time.Time     `json:"test_end"`
	Evaluated  int           `json:"evaluated"`
	Elapsed    time.Duration `json:"elapsed"`
	Best       *Candidate    `json:"best,omitempty"`
	Candidates []Candidate   `json:"candidates"`
	Warning    string        `json:"warning,omitempty"`
}

// Optimizer evaluates parameter combinations concurrently. Concurrency is
// across combinations only; each backtest itself runs sequentially.
type Optimizer struct {
	cfg    config.OptimizerConfig
	orch   *backtest.Orchestrator
	logger zerolog.Logger
}

// NewOptimizer creates an optimizer over the given orchestrator.
func NewOptimizer(cfg config.OptimizerConfig, orch *backtest.Orchestrator, logger zerolog.Logger) *Optimizer {
	return &Optimizer{cfg: cfg, orch: orch, logger: logger}
}

// Options configures one optimization run.
type Options struct {
	Symbol    string
	Strategy  string
	Space     Space
	StartDate time.Time
	EndDate   time.Time
	Seed      int64
}

// Run executes the search. A non-positive TimeBudget means unlimited; when
// the budget expires, submission stops and in-flight evaluations finish, so
// the report may be partial.
func (o *Optimizer) Run(ctx context.Context, opts Options) (*Report, error) {
	space := opts.Space
	if len(space) == 0 {
		space = DefaultSpace(opts.Strategy)
	}

	combos := o.combinations(space, opts.Seed)
	if len(combos) == 0 {
		return nil, errors.NewValidationError("space", space, "empty parameter space")
	}

	trainStart, trainEnd, testStart, testEnd, err := o.splitDates(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      uuid.NewString(),
		Symbol:     opts.Symbol,
		Strategy:   opts.Strategy,
		Method:     o.cfg.Method,
		Metric:     o.cfg.Metric,
		TrainStart: trainStart,
		TrainEnd:   trainEnd,
		TestStart:  testStart,
		TestEnd:    testEnd,
	}

	started := time.Now()
	var deadline time.Time
	if o.cfg.TimeBudget > 0 {
		deadline = started.Add(o.cfg.TimeBudget)
	}

	pool := newWorkerPool(ctx, o.cfg.Workers)
	pool.start()

	var mu sync.Mutex
	var candidates []Candidate

	submitted := 0
	for _, params := range combos {
		if err := ctx.Err(); err != nil {
			pool.abort()
			return nil, errors.Wrap(errors.ErrRunCancelled, err.Error())
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			report.Warning = errors.ErrBudgetExhausted.Error()
			break
		}

		params := params
		ok := pool.submit(func() {
			c := o.evaluate(ctx, opts, params, trainStart, trainEnd, testStart, testEnd)
			mu.Lock()
			candidates = append(candidates, c)
			mu.Unlock()
		})
		if !ok {
			break
		}
		submitted++
	}

	pool.stop()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrRunCancelled, err.Error())
	}

	report.Elapsed = time.Since(started)
	report.Evaluated = len(candidates)
	o.rank(report, candidates)

	o.logger.Info().
		Int("evaluated", report.Evaluated).
		Int("submitted", submitted).
		Dur("elapsed", report.Elapsed).
		Msg("optimization complete")

	return report, nil
}

// combinations expands the space per the configured method.
func (o *Optimizer) combinations(space Space, seed int64) []predict.Params {
	if o.cfg.Method == "random" {
		n := o.cfg.MaxCombinations
		if n <= 0 {
			n = 50
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return space.Random(n, seed)
	}

	combos := space.Grid()
	if o.cfg.MaxCombinations > 0 && len(combos) > o.cfg.MaxCombinations {
		combos = combos[:o.cfg.MaxCombinations]
	}
	return combos
}

// splitDates carves [start, end] into train and test segments separated by
// the embargo gap, so signals near the boundary cannot leak forward.
func (o *Optimizer) splitDates(start, end time.Time) (trainStart, trainEnd, testStart, testEnd time.Time, err error) {
	totalDays := int(end.Sub(start).Hours() / 24)
	trainDays := int(float64(totalDays) * o.cfg.TrainRatio)

	trainStart = start
	trainEnd = start.AddDate(0, 0, trainDays)
	testStart = trainEnd.AddDate(0, 0, o.cfg.EmbargoDays)
	testEnd = end

	if !testStart.Before(testEnd) {
		return time.Time{}, time.Time{}, time.Time{}, time.Time{},
			errors.NewValidationError("date_range", totalDays,
				"range too short for train/test split with embargo")
	}
	return trainStart, trainEnd, testStart, testEnd, nil
}

// evaluate runs one candidate on both segments. Failures are recorded on the
// candidate rather than aborting the search.
func (o *Optimizer) evaluate(ctx context.Context, opts Options, params predict.Params, trainStart, trainEnd, testStart, testEnd time.Time) Candidate {
	c := Candidate{ID: uuid.NewString(), Params: params}

	train, err := o.orch.Run(ctx, backtest.RunOptions{
		Symbol:    opts.Symbol,
		Strategy:  opts.Strategy,
		Params:    params,
		StartDate: trainStart,
		EndDate:   trainEnd,
	})
	if err != nil {
		c.Err = err.Error()
		return c
	}

	// Cancellation is honored between the two runs, not within one.
	if err := ctx.Err(); err != nil {
		c.Err = errors.ErrRunCancelled.Error()
		return c
	}

	test, err := o.orch.Run(ctx, backtest.RunOptions{
		Symbol:    opts.Symbol,
		Strategy:  opts.Strategy,
		Params:    params,
		StartDate: testStart,
		EndDate:   testEnd,
	})
	if err != nil {
		c.Err = err.Error()
		return c
	}

	c.TrainMetric = o.metricValue(train)
	c.TestMetric = o.metricValue(test)
	c.TrainTrades = train.Metrics.TotalTrades
	c.TestTrades = test.Metrics.TotalTrades
	c.OverfitScore = OverfitScore(c.TrainMetric, c.TestMetric)
	c.Bucket = OverfitBucket(c.OverfitScore)
	return c
}

func (o *Optimizer) metricValue(r *models.BacktestResult) float64 {
	if o.cfg.Metric == "sharpe_ratio" {
		return r.Metrics.SharpeRatio
	}
	return r.Metrics.TotalReturn
}

// rank sorts candidates by test metric and picks the best low-overfit one.
// When no candidate lands in the low bucket the overall best is reported
// with a warning.
func (o *Optimizer) rank(report *Report, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if (candidates[i].Err == "") != (candidates[j].Err == "") {
			return candidates[i].Err == ""
		}
		return candidates[i].TestMetric > candidates[j].TestMetric
	})

	for i := range candidates {
		c := candidates[i]
		if c.Err != "" {
			continue
		}
		if c.Bucket == BucketLow {
			report.Best = &c
			break
		}
	}
	if report.Best == nil {
		for i := range candidates {
			if candidates[i].Err == "" {
				c := candidates[i]
				report.Best = &c
				if report.Warning == "" {
					report.Warning = "no candidate with low overfit score; best result may not generalize"
				}
				break
			}
		}
	}

	if o.cfg.TopK > 0 && len(candidates) > o.cfg.TopK {
		candidates = candidates[:o.cfg.TopK]
	}
	report.Candidates = candidates
}

// OverfitScore measures in-sample versus out-of-sample degradation on a
// 0..100 scale. Zero when the test segment matches or beats training.
func OverfitScore(train, test float64) float64 {
	if train == 0 {
		return 0
	}
	score := (train - test) / math.Abs(train) * 100
	return math.Max(0, score)
}

// OverfitBucket classifies an overfit score.
func OverfitBucket(score float64) string {
	switch {
	case score < 20:
		return BucketLow
	case score <= 40:
		return BucketModerate
	default:
		return BucketHigh
	}
}
