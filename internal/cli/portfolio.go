package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"signal-trader/internal/backtest"
	"signal-trader/internal/errors"
	"signal-trader/internal/predict"
	"signal-trader/pkg/utils"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio SYMBOL [SYMBOL...]",
		Short: "Run a multi-symbol portfolio backtest",
		Long: `Simulate several symbols sharing one capital pool. Capital is allocated
by the configured strategy and rebalanced on the time interval or when
weights drift past tolerance.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Provider == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no data source configured")
			}

			symbols := make([]string, len(args))
			for i, a := range args {
				symbols[i] = strings.ToUpper(a)
			}

			strategy, _ := cmd.Flags().GetString("strategy")
			allocation, _ := cmd.Flags().GetString("allocation")
			if allocation != "" {
				app.Config.Portfolio.AllocationStrategy = allocation
				if err := app.Config.Validate(); err != nil {
					return err
				}
			}

			start, end, err := parseDateRange(cmd)
			if err != nil {
				return err
			}

			result, err := app.orchestrator().RunPortfolio(cmd.Context(), backtest.PortfolioOptions{
				Symbols:   symbols,
				Strategy:  strategy,
				StartDate: start,
				EndDate:   end,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			m := result.Metrics
			output.Bold("Portfolio backtest (%s allocation)", result.AllocationStrategy)
			output.Printf("Period:          %s to %s\n",
				result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02"))
			output.Printf("Capital:         %s -> %s\n",
				utils.FormatMoney(result.InitialCapital), utils.FormatMoney(result.FinalEquity))
			output.Printf("Return:          %s   Sharpe: %.2f   Max DD: %s\n",
				output.Signed(m.TotalReturn, utils.FormatPercent(m.TotalReturn)),
				m.SharpeRatio, utils.FormatPercent(m.MaxDrawdown))
			output.Printf("Rebalances:      %d\n", result.Rebalances)
			output.Printf("Diversification: %.1f/100\n", result.DiversificationScore)

			output.Println()
			output.Bold("Per-symbol contribution")
			output.Printf("%-10s %8s %14s %10s %10s\n", "SYMBOL", "TRADES", "PNL", "RETURN", "WEIGHT")

			ordered := make([]string, 0, len(result.Contributions))
			for sym := range result.Contributions {
				ordered = append(ordered, sym)
			}
			sort.Strings(ordered)
			for _, sym := range ordered {
				c := result.Contributions[sym]
				if c.SkippedReason != "" {
					output.Warning("%-10s skipped: %s", sym, c.SkippedReason)
					continue
				}
				output.Printf("%-10s %8d %14s %10s %9.1f%%\n",
					sym, c.Trades,
					output.Signed(c.RealizedPnL, utils.FormatMoney(c.RealizedPnL)),
					utils.FormatPercent(c.ReturnPct),
					c.FinalWeight*100)
			}
			return nil
		},
	}

	cmd.Flags().String("strategy", "sma_crossover", "signal strategy: "+strings.Join(predict.Strategies(), ", "))
	cmd.Flags().String("allocation", "", "allocation strategy: equal_weight, risk_parity, confidence_weighted, kelly")
	cmd.Flags().String("start", "", "start date (YYYY-MM-DD, default 1 year ago)")
	cmd.Flags().String("end", "", "end date (YYYY-MM-DD, default today)")

	return cmd
}
