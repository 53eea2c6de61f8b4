package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"signal-trader/internal/backtest"
	"signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/internal/predict"
	"signal-trader/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Run a single-symbol backtest",
		Long: `Replay historical bars for one symbol through a strategy and report
performance metrics, the trade list, and the equity curve.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Provider == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no data source configured")
			}

			symbol := strings.ToUpper(args[0])
			strategy, _ := cmd.Flags().GetString("strategy")
			save, _ := cmd.Flags().GetBool("save")

			start, end, err := parseDateRange(cmd)
			if err != nil {
				return err
			}

			result, err := app.orchestrator().Run(cmd.Context(), backtest.RunOptions{
				Symbol:    symbol,
				Strategy:  strategy,
				StartDate: start,
				EndDate:   end,
			})
			if err != nil {
				return err
			}

			if save && app.Store != nil {
				if err := app.Store.SaveRun(cmd.Context(), result); err != nil {
					output.Warning("failed to save run: %v", err)
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printBacktestResult(output, result)
			return nil
		},
	}

	cmd.Flags().String("strategy", "sma_crossover", "strategy: "+strings.Join(predict.Strategies(), ", "))
	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, default 1 year ago)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD, default today)")
	cmd.Flags().Bool("save", false, "persist the run to the local database")

	return cmd
}

func printBacktestResult(output *Output, result *models.BacktestResult) {
	m := result.Metrics

	output.Bold("Backtest %s (%s)", result.Symbol, result.Strategy)
	output.Printf("Period:       %s to %s (%d bars)\n",
		result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"), result.Bars)
	output.Printf("Capital:      %s -> %s\n",
		utils.FormatMoney(result.InitialCapital), utils.FormatMoney(result.FinalEquity))
	output.Printf("Return:       %s (annualized %s)\n",
		output.Signed(m.TotalReturn, utils.FormatPercent(m.TotalReturn)),
		output.Signed(m.AnnualizedReturn, utils.FormatPercent(m.AnnualizedReturn)))
	output.Printf("Sharpe:       %.2f   Sortino: %.2f   Calmar: %.2f\n",
		m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	output.Printf("Max drawdown: %s over %d bars\n",
		utils.FormatPercent(m.MaxDrawdown), m.DrawdownDuration)
	output.Printf("Trades:       %d (win rate %s, profit factor %.2f, expectancy %s)\n",
		m.TotalTrades, utils.FormatPercent(m.WinRate), m.ProfitFactor, utils.FormatMoney(m.Expectancy))
	output.Printf("Commissions:  %s\n", utils.FormatMoney(m.TotalCommissions))
	if result.SkippedPredictions > 0 {
		output.Warning("Skipped predictions: %d bars held due to provider failures", result.SkippedPredictions)
	}
}

func newCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare SYMBOL",
		Short: "Compare all built-in strategies on one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Provider == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no data source configured")
			}

			symbol := strings.ToUpper(args[0])
			start, end, err := parseDateRange(cmd)
			if err != nil {
				return err
			}

			orch := app.orchestrator()
			results := make(map[string]*models.BacktestResult)
			for _, strategy := range predict.Strategies() {
				result, err := orch.Run(cmd.Context(), backtest.RunOptions{
					Symbol:    symbol,
					Strategy:  strategy,
					StartDate: start,
					EndDate:   end,
				})
				if err != nil {
					output.Warning("%s: %v", strategy, err)
					continue
				}
				results[strategy] = result
			}
			if len(results) == 0 {
				return errors.Wrap(errors.ErrDataUnavailable, "no strategy produced a result")
			}

			if output.IsJSON() {
				return output.JSON(results)
			}

			output.Bold("Strategy comparison for %s", symbol)
			output.Printf("%-20s %12s %10s %10s %8s\n", "STRATEGY", "RETURN", "SHARPE", "MAX DD", "TRADES")
			for _, strategy := range predict.Strategies() {
				r, ok := results[strategy]
				if !ok {
					continue
				}
				output.Printf("%-20s %12s %10.2f %10s %8d\n",
					strategy,
					output.Signed(r.Metrics.TotalReturn, utils.FormatPercent(r.Metrics.TotalReturn)),
					r.Metrics.SharpeRatio,
					utils.FormatPercent(r.Metrics.MaxDrawdown),
					r.Metrics.TotalTrades)
			}
			return nil
		},
	}

	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, default 1 year ago)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD, default today)")

	return cmd
}
