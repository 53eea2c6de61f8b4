package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signal-trader/internal/backtest"
	"signal-trader/internal/config"
	"signal-trader/internal/market"
	"signal-trader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.DataStore
	Provider market.Provider
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize store, persistence unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.Data.DBPath).Msg("sqlite store initialized")
	}

	app.Provider = buildProvider(app)

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Signal Trader - historical strategy simulation CLI",
		Long: `Signal Trader replays historical market data through trading strategies
under a realistic execution model: slippage, spread, market impact,
commissions, stop-loss and take-profit exits, and a daily loss breaker.

Use 'trader backtest' for single-symbol runs, 'trader portfolio' for
multi-symbol runs with rebalancing, and 'trader optimize' for
walk-forward parameter search.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/signal-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newCompareCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newOptimizeCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newRunsCmd(app))

	return rootCmd
}

// buildProvider selects the data source: the SQLite store when available,
// a CSV directory otherwise, both behind the read-through cache.
func buildProvider(app *App) market.Provider {
	var inner market.Provider
	if app.Store != nil {
		if sqlite, ok := app.Store.(*store.SQLiteStore); ok {
			inner = sqlite
		}
	}
	if inner == nil && app.Config.Data.CSVDir != "" {
		inner = market.NewCSVProvider(app.Config.Data.CSVDir)
	}
	if inner == nil {
		return nil
	}
	return market.NewCachingProvider(inner)
}

func (app *App) orchestrator() *backtest.Orchestrator {
	return backtest.NewOrchestrator(app.Config, app.Provider, app.Logger)
}

// parseDateRange parses --start/--end flags, defaulting to the last year.
func parseDateRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endStr != "" {
		parsed, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}

	start := end.AddDate(-1, 0, 0)
	if startStr != "" {
		parsed, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}

	return start, end, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("Signal Trader v%s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return output.JSON(app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			output.Println(config.DefaultConfigDir())
		},
	})

	return cmd
}
