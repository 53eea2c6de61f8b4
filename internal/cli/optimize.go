package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"signal-trader/internal/errors"
	"signal-trader/internal/optimize"
	"signal-trader/internal/predict"
	"signal-trader/pkg/utils"
)

func newOptimizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize SYMBOL",
		Short: "Search strategy parameters with walk-forward validation",
		Long: `Evaluate parameter combinations on a train segment and score them on an
embargoed out-of-sample test segment. Results are ranked by test metric
and flagged when in-sample performance does not carry over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Provider == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no data source configured")
			}

			symbol := strings.ToUpper(args[0])
			strategy, _ := cmd.Flags().GetString("strategy")
			method, _ := cmd.Flags().GetString("method")
			budget, _ := cmd.Flags().GetDuration("budget")
			seed, _ := cmd.Flags().GetInt64("seed")

			if method != "" {
				app.Config.Optimizer.Method = method
			}
			if budget > 0 {
				app.Config.Optimizer.TimeBudget = budget
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}

			start, end, err := parseDateRange(cmd)
			if err != nil {
				return err
			}

			optimizer := optimize.NewOptimizer(app.Config.Optimizer, app.orchestrator(), app.Logger)
			report, err := optimizer.Run(cmd.Context(), optimize.Options{
				Symbol:    symbol,
				Strategy:  strategy,
				StartDate: start,
				EndDate:   end,
				Seed:      seed,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printOptimizeReport(output, report)
			return nil
		},
	}

	cmd.Flags().String("strategy", "sma_crossover", "strategy: "+strings.Join(predict.Strategies(), ", "))
	cmd.Flags().String("method", "", "search method: grid or random")
	cmd.Flags().Duration("budget", 0, "wall-clock budget, e.g. 2m (0 = unlimited)")
	cmd.Flags().Int64("seed", 0, "random search seed (0 = time-based)")
	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, default 1 year ago)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD, default today)")

	return cmd
}

func printOptimizeReport(output *Output, report *optimize.Report) {
	output.Bold("Optimization %s (%s, %s search on %s)",
		report.Symbol, report.Strategy, report.Method, report.Metric)
	output.Printf("Train: %s to %s   Test: %s to %s\n",
		report.TrainStart.Format("2006-01-02"), report.TrainEnd.Format("2006-01-02"),
		report.TestStart.Format("2006-01-02"), report.TestEnd.Format("2006-01-02"))
	output.Printf("Evaluated %d combinations in %s\n",
		report.Evaluated, report.Elapsed.Round(time.Millisecond))

	if report.Warning != "" {
		output.Warning("%s", report.Warning)
	}

	if report.Best != nil {
		output.Println()
		output.Success("Best: %v", report.Best.Params)
		output.Printf("  train %s  test %s  overfit %.1f (%s)\n",
			utils.FormatPercent(report.Best.TrainMetric),
			utils.FormatPercent(report.Best.TestMetric),
			report.Best.OverfitScore, report.Best.Bucket)
	}

	output.Println()
	output.Printf("%-40s %12s %12s %10s %10s\n", "PARAMS", "TRAIN", "TEST", "OVERFIT", "BUCKET")
	for _, c := range report.Candidates {
		if c.Err != "" {
			output.Dim("%-40v failed: %s", c.Params, c.Err)
			continue
		}
		output.Printf("%-40v %12s %12s %10.1f %10s\n",
			c.Params,
			utils.FormatPercent(c.TrainMetric),
			utils.FormatPercent(c.TestMetric),
			c.OverfitScore, c.Bucket)
	}
}
