package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"signal-trader/internal/errors"
	"signal-trader/internal/market"
	"signal-trader/pkg/utils"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage historical bar data",
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataStatusCmd(app))

	return cmd
}

// newDataImportCmd ingests per-symbol CSV files into the SQLite store.
func newDataImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [SYMBOL...]",
		Short: "Import CSV bar files into the local database",
		Long: `Load per-symbol CSV files (date,open,high,low,close,volume) from the
configured csv_dir into the SQLite store. With no arguments every file
in the directory is imported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no database configured")
			}

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Config.Data.CSVDir
			}
			if dir == "" {
				return errors.NewValidationError("data.csv_dir", dir, "no CSV directory configured")
			}

			csv := market.NewCSVProvider(dir)
			symbols := args
			if len(symbols) == 0 {
				listed, err := csv.Symbols()
				if err != nil {
					return err
				}
				symbols = listed
			}
			if len(symbols) == 0 {
				return errors.Wrap(errors.ErrDataUnavailable, "no CSV files found")
			}

			wide := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
			now := time.Now().UTC()
			imported := 0
			for _, sym := range symbols {
				sym = strings.ToUpper(sym)
				bars, err := csv.GetBars(cmd.Context(), sym, wide, now)
				if err != nil {
					output.Warning("%s: %v", sym, err)
					continue
				}
				if err := app.Store.SaveBars(cmd.Context(), sym, bars); err != nil {
					output.Warning("%s: %v", sym, err)
					continue
				}
				output.Success("%s: imported %d bars", sym, len(bars))
				imported++
			}

			if cache, ok := app.Provider.(*market.CachingProvider); ok && imported > 0 {
				cache.Invalidate()
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "CSV directory (default: data.csv_dir from config)")
	return cmd
}

func newDataStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status SYMBOL [SYMBOL...]",
		Short: "Show stored bar coverage per symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no database configured")
			}

			type coverage struct {
				Symbol string    `json:"symbol"`
				First  time.Time `json:"first,omitempty"`
				Last   time.Time `json:"last,omitempty"`
				Bars   int       `json:"bars"`
			}

			var rows []coverage
			for _, sym := range args {
				sym = strings.ToUpper(sym)
				first, last, count, err := app.Store.BarRange(cmd.Context(), sym)
				if err != nil {
					output.Warning("%s: %v", sym, err)
					continue
				}
				rows = append(rows, coverage{Symbol: sym, First: first, Last: last, Bars: count})
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}

			output.Printf("%-10s %12s %12s %8s\n", "SYMBOL", "FIRST", "LAST", "BARS")
			for _, r := range rows {
				if r.Bars == 0 {
					output.Dim("%-10s no data", r.Symbol)
					continue
				}
				output.Printf("%-10s %12s %12s %8d\n",
					r.Symbol, r.First.Format("2006-01-02"), r.Last.Format("2006-01-02"), r.Bars)
			}
			return nil
		},
	}
}

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse saved backtest runs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no database configured")
			}

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := app.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}

			output.Printf("%-36s %-10s %-15s %12s %8s %8s\n",
				"RUN", "SYMBOL", "STRATEGY", "RETURN", "SHARPE", "TRADES")
			for _, r := range runs {
				output.Printf("%-36s %-10s %-15s %12s %8.2f %8d\n",
					r.RunID, r.Symbol, r.Strategy,
					output.Signed(r.TotalReturn, utils.FormatPercent(r.TotalReturn)),
					r.SharpeRatio, r.TotalTrades)
			}
			return nil
		},
	}
	list.Flags().Int("limit", 20, "maximum runs to list")

	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a saved run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrDataUnavailable, "no database configured")
			}

			result, err := app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			printBacktestResult(output, result)
			return nil
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)
	return cmd
}
