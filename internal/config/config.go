// Package config provides configuration management for the simulation engine.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"signal-trader/internal/errors"
)

// Config holds all engine configuration. It is constructed once per run,
// validated up front, and passed by value through the call chain; the active
// config is never mutated while a simulation is in flight.
type Config struct {
	Simulation SimulationConfig `mapstructure:"simulation"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Portfolio  PortfolioConfig  `mapstructure:"portfolio"`
	Optimizer  OptimizerConfig  `mapstructure:"optimizer"`
	Data       DataConfig       `mapstructure:"data"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SimulationConfig holds per-ledger execution parameters.
type SimulationConfig struct {
	InitialCapital      float64 `mapstructure:"initial_capital"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	// BaseFraction is the fraction of total equity committed to a full
	// confidence entry; actual size scales with signal confidence.
	BaseFraction float64 `mapstructure:"base_fraction"`
	// MaxPositionSize caps a single position as a fraction of total equity
	// (not available cash).
	MaxPositionSize    float64 `mapstructure:"max_position_size"`
	StopLossPct        float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct      float64 `mapstructure:"take_profit_pct"`
	CommissionRate     float64 `mapstructure:"commission_rate"`
	SlippageBps        float64 `mapstructure:"slippage_bps"`
	SpreadBps          float64 `mapstructure:"spread_bps"`
	ImpactCoeff        float64 `mapstructure:"impact_coeff"`
	ReferenceLiquidity float64 `mapstructure:"reference_liquidity"`
	LookbackDays       int     `mapstructure:"lookback_days"`
}

// RiskConfig holds risk management rules consulted before every entry.
type RiskConfig struct {
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	DailyLossLimitPct      float64 `mapstructure:"daily_loss_limit_pct"`
	// MaxCorrelation caps the mean absolute pairwise correlation of held
	// symbols; 0 disables the check.
	MaxCorrelation    float64 `mapstructure:"max_correlation"`
	CorrelationWindow int     `mapstructure:"correlation_window"`
}

// PortfolioConfig holds multi-symbol allocation parameters.
type PortfolioConfig struct {
	AllocationStrategy string  `mapstructure:"allocation_strategy"` // equal_weight, risk_parity, confidence_weighted, kelly
	RebalanceInterval  string  `mapstructure:"rebalance_interval"`  // daily, weekly, monthly
	DriftTolerance     float64 `mapstructure:"drift_tolerance"`
	VolatilityWindow   int     `mapstructure:"volatility_window"`
	KellyCap           float64 `mapstructure:"kelly_cap"`
}

// OptimizerConfig holds parameter search settings.
type OptimizerConfig struct {
	Method          string        `mapstructure:"method"` // grid, random
	Metric          string        `mapstructure:"metric"` // total_return, sharpe_ratio
	EmbargoDays     int           `mapstructure:"embargo_days"`
	TrainRatio      float64       `mapstructure:"train_ratio"`
	MaxCombinations int           `mapstructure:"max_combinations"` // random search sample size
	Workers         int           `mapstructure:"workers"`
	TimeBudget      time.Duration `mapstructure:"time_budget"`
	TopK            int           `mapstructure:"top_k"`
}

// DataConfig holds market data source settings.
type DataConfig struct {
	DBPath string `mapstructure:"db_path"`
	CSVDir string `mapstructure:"csv_dir"`
	// MinBars is the minimum history a symbol needs before simulation.
	MinBars int `mapstructure:"min_bars"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/signal-trader"
	}
	return filepath.Join(home, ".config", "signal-trader")
}

// Default returns a fully populated configuration with conservative defaults.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			InitialCapital:      100000,
			ConfidenceThreshold: 0.55,
			BaseFraction:        0.25,
			MaxPositionSize:     0.20,
			StopLossPct:         0.03,
			TakeProfitPct:       0.08,
			CommissionRate:      0.001,
			SlippageBps:         5,
			SpreadBps:           2,
			ImpactCoeff:         0.1,
			ReferenceLiquidity:  1_000_000,
			LookbackDays:        60,
		},
		Risk: RiskConfig{
			MaxConcurrentPositions: 10,
			DailyLossLimitPct:      0.05,
			MaxCorrelation:         0,
			CorrelationWindow:      30,
		},
		Portfolio: PortfolioConfig{
			AllocationStrategy: "equal_weight",
			RebalanceInterval:  "weekly",
			DriftTolerance:     0.05,
			VolatilityWindow:   30,
			KellyCap:           0.20,
		},
		Optimizer: OptimizerConfig{
			Method:          "grid",
			Metric:          "total_return",
			EmbargoDays:     3,
			TrainRatio:      0.7,
			MaxCombinations: 50,
			Workers:         4,
			TimeBudget:      0,
			TopK:            10,
		},
		Data: DataConfig{
			DBPath:  filepath.Join(DefaultConfigDir(), "trader.db"),
			CSVDir:  "",
			MinBars: 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			File:       false,
			FilePath:   filepath.Join(DefaultConfigDir(), "logs", "trader.log"),
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
	}
}

// Load loads configuration from config.toml in the specified directory,
// falling back to defaults for any unset field. If configDir is empty the
// default config directory is used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config.toml")
		}
		// Missing file is fine; defaults apply.
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("simulation.initial_capital", d.Simulation.InitialCapital)
	v.SetDefault("simulation.confidence_threshold", d.Simulation.ConfidenceThreshold)
	v.SetDefault("simulation.base_fraction", d.Simulation.BaseFraction)
	v.SetDefault("simulation.max_position_size", d.Simulation.MaxPositionSize)
	v.SetDefault("simulation.stop_loss_pct", d.Simulation.StopLossPct)
	v.SetDefault("simulation.take_profit_pct", d.Simulation.TakeProfitPct)
	v.SetDefault("simulation.commission_rate", d.Simulation.CommissionRate)
	v.SetDefault("simulation.slippage_bps", d.Simulation.SlippageBps)
	v.SetDefault("simulation.spread_bps", d.Simulation.SpreadBps)
	v.SetDefault("simulation.impact_coeff", d.Simulation.ImpactCoeff)
	v.SetDefault("simulation.reference_liquidity", d.Simulation.ReferenceLiquidity)
	v.SetDefault("simulation.lookback_days", d.Simulation.LookbackDays)
	v.SetDefault("risk.max_concurrent_positions", d.Risk.MaxConcurrentPositions)
	v.SetDefault("risk.daily_loss_limit_pct", d.Risk.DailyLossLimitPct)
	v.SetDefault("risk.correlation_window", d.Risk.CorrelationWindow)
	v.SetDefault("portfolio.allocation_strategy", d.Portfolio.AllocationStrategy)
	v.SetDefault("portfolio.rebalance_interval", d.Portfolio.RebalanceInterval)
	v.SetDefault("portfolio.drift_tolerance", d.Portfolio.DriftTolerance)
	v.SetDefault("portfolio.volatility_window", d.Portfolio.VolatilityWindow)
	v.SetDefault("portfolio.kelly_cap", d.Portfolio.KellyCap)
	v.SetDefault("optimizer.method", d.Optimizer.Method)
	v.SetDefault("optimizer.metric", d.Optimizer.Metric)
	v.SetDefault("optimizer.embargo_days", d.Optimizer.EmbargoDays)
	v.SetDefault("optimizer.train_ratio", d.Optimizer.TrainRatio)
	v.SetDefault("optimizer.max_combinations", d.Optimizer.MaxCombinations)
	v.SetDefault("optimizer.workers", d.Optimizer.Workers)
	v.SetDefault("optimizer.top_k", d.Optimizer.TopK)
	v.SetDefault("data.db_path", d.Data.DBPath)
	v.SetDefault("data.min_bars", d.Data.MinBars)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("TRADER_CSV_DIR"); v != "" {
		cfg.Data.CSVDir = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var validAllocationStrategies = map[string]bool{
	"equal_weight":        true,
	"risk_parity":         true,
	"confidence_weighted": true,
	"kelly":               true,
}

var validRebalanceIntervals = map[string]bool{
	"daily":   true,
	"weekly":  true,
	"monthly": true,
}

// Validate validates the configuration. It fails fast with a message naming
// the offending field, before any simulation starts.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.InitialCapital <= 0 {
		return errors.NewValidationError("simulation.initial_capital", s.InitialCapital, "must be positive")
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return errors.NewValidationError("simulation.confidence_threshold", s.ConfidenceThreshold, "must be in [0, 1]")
	}
	if s.BaseFraction <= 0 || s.BaseFraction > 1 {
		return errors.NewValidationError("simulation.base_fraction", s.BaseFraction, "must be in (0, 1]")
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > 1 {
		return errors.NewValidationError("simulation.max_position_size", s.MaxPositionSize, "must be in (0, 1]")
	}
	if s.StopLossPct < 0 || s.StopLossPct >= 1 {
		return errors.NewValidationError("simulation.stop_loss_pct", s.StopLossPct, "must be in [0, 1)")
	}
	if s.TakeProfitPct < 0 {
		return errors.NewValidationError("simulation.take_profit_pct", s.TakeProfitPct, "must be non-negative")
	}
	if s.CommissionRate < 0 || s.CommissionRate > 0.1 {
		return errors.NewValidationError("simulation.commission_rate", s.CommissionRate, "must be in [0, 0.1]")
	}
	if s.SlippageBps < 0 || s.SpreadBps < 0 {
		return errors.NewValidationError("simulation.slippage_bps", s.SlippageBps, "slippage and spread must be non-negative")
	}
	if s.ReferenceLiquidity <= 0 {
		return errors.NewValidationError("simulation.reference_liquidity", s.ReferenceLiquidity, "must be positive")
	}

	r := c.Risk
	if r.MaxConcurrentPositions <= 0 {
		return errors.NewValidationError("risk.max_concurrent_positions", r.MaxConcurrentPositions, "must be positive")
	}
	if r.DailyLossLimitPct < 0 || r.DailyLossLimitPct > 1 {
		return errors.NewValidationError("risk.daily_loss_limit_pct", r.DailyLossLimitPct, "must be in [0, 1]")
	}
	if r.MaxCorrelation < 0 || r.MaxCorrelation > 1 {
		return errors.NewValidationError("risk.max_correlation", r.MaxCorrelation, "must be in [0, 1]")
	}

	p := c.Portfolio
	if !validAllocationStrategies[strings.ToLower(p.AllocationStrategy)] {
		return errors.NewValidationError("portfolio.allocation_strategy", p.AllocationStrategy,
			"must be one of equal_weight, risk_parity, confidence_weighted, kelly")
	}
	if !validRebalanceIntervals[strings.ToLower(p.RebalanceInterval)] {
		return errors.NewValidationError("portfolio.rebalance_interval", p.RebalanceInterval,
			"must be one of daily, weekly, monthly")
	}
	if p.DriftTolerance <= 0 || p.DriftTolerance > 1 {
		return errors.NewValidationError("portfolio.drift_tolerance", p.DriftTolerance, "must be in (0, 1]")
	}
	if p.VolatilityWindow < 2 {
		return errors.NewValidationError("portfolio.volatility_window", p.VolatilityWindow, "must be at least 2")
	}
	if p.KellyCap <= 0 || p.KellyCap > 1 {
		return errors.NewValidationError("portfolio.kelly_cap", p.KellyCap, "must be in (0, 1]")
	}

	o := c.Optimizer
	if o.Method != "grid" && o.Method != "random" {
		return errors.NewValidationError("optimizer.method", o.Method, "must be grid or random")
	}
	if o.Metric != "total_return" && o.Metric != "sharpe_ratio" {
		return errors.NewValidationError("optimizer.metric", o.Metric, "must be total_return or sharpe_ratio")
	}
	if o.EmbargoDays < 0 {
		return errors.NewValidationError("optimizer.embargo_days", o.EmbargoDays, "must be non-negative")
	}
	if o.TrainRatio <= 0 || o.TrainRatio >= 1 {
		return errors.NewValidationError("optimizer.train_ratio", o.TrainRatio, "must be in (0, 1)")
	}
	if o.Workers <= 0 {
		return errors.NewValidationError("optimizer.workers", o.Workers, "must be positive")
	}
	if o.TopK <= 0 {
		return errors.NewValidationError("optimizer.top_k", o.TopK, "must be positive")
	}

	if c.Data.MinBars < 2 {
		return errors.NewValidationError("data.min_bars", c.Data.MinBars, "must be at least 2")
	}

	return nil
}
