package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"vela/internal/backtest"
	"vela/internal/domain"
	"vela/internal/progress"
	"vela/internal/store"
	"vela/internal/strategy"
	"vela/internal/strategy/builtins"
	"vela/internal/util"
)

func main() {
	var (
		dataDir   = flag.String("data", "data", "parquet data directory")
		dbPath    = flag.String("db", "", "sqlite path for persisting results (empty = no persistence)")
		strat     = flag.String("strategy", "", "strategy name (see -list)")
		symbols   = flag.String("symbols", "", "comma-separated symbols")
		startStr  = flag.String("start", "", "window start (YYYY-MM-DD)")
		endStr    = flag.String("end", "", "window end (YYYY-MM-DD)")
		capital   = flag.Float64("capital", 100000, "initial capital")
		paramsStr = flag.String("params", "", "strategy parameters as JSON, e.g. '{\"window\": 20}'")
		benchmark = flag.String("benchmark", "", "benchmark symbol for alpha/beta")
		slippage  = flag.Float64("slippage", 0, "slippage fraction per fill")
		commFlat  = flag.Float64("commission-flat", 0, "flat commission per fill")
		commPct   = flag.Float64("commission-pct", 0, "commission fraction of notional")
		sweep     = flag.String("sweep", "", "parameter sweep, e.g. 'window=10,20,30'")
		workers   = flag.Int("workers", 0, "sweep workers (0 = NumCPU)")
		trades    = flag.Bool("trades", false, "print the trade log")
		list      = flag.Bool("list", false, "list registered strategies and exit")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	util.SetDefault(util.NewLogger(*logLevel, "text"))

	registry := strategy.NewRegistry()
	builtins.RegisterAll(registry)

	if *list {
		printStrategies(registry)
		return
	}

	if *strat == "" || *symbols == "" || *startStr == "" || *endStr == "" {
		fmt.Fprintln(os.Stderr, "required: -strategy, -symbols, -start, -end")
		flag.Usage()
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	params := map[string]any{}
	if *paramsStr != "" {
		if err := json.Unmarshal([]byte(*paramsStr), &params); err != nil {
			log.Fatalf("invalid -params: %v", err)
		}
	}

	cfg := domain.BacktestConfig{
		Strategy:       *strat,
		Params:         params,
		Symbols:        splitSymbols(*symbols),
		Start:          start,
		End:            end.Add(24*time.Hour - time.Nanosecond),
		InitialCapital: *capital,
		SlippagePct:    *slippage,
		CommissionFlat: *commFlat,
		CommissionPct:  *commPct,
		Benchmark:      strings.ToUpper(*benchmark),
	}

	bars := store.NewCachedBarStore(store.NewParquetStore(*dataDir), 5*time.Minute)

	var results store.ResultStore
	if *dbPath != "" {
		sqlStore, err := store.NewSQLiteStore(*dbPath)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer sqlStore.Close()
		results = sqlStore
	}

	tracker := progress.NewTracker()
	runner := backtest.NewRunner(bars, registry, results, tracker)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *sweep != "" {
		runSweep(ctx, runner, cfg, *sweep, *workers)
		return
	}

	res, err := runner.Run(ctx, cfg)
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}
	printResult(res, *trades)
	if res.Status != domain.StatusCompleted {
		os.Exit(1)
	}
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printStrategies(registry *strategy.Registry) {
	for _, name := range registry.List() {
		fmt.Println(name)
		schema, _ := registry.Schema(name)
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Param", "Type", "Default", "Bounds")
		for pname, spec := range schema {
			bounds := ""
			if spec.Min != nil {
				bounds = fmt.Sprintf(">= %v", *spec.Min)
			}
			if spec.Max != nil {
				bounds += fmt.Sprintf(" <= %v", *spec.Max)
			}
			if len(spec.Options) > 0 {
				bounds = strings.Join(spec.Options, "|")
			}
			table.Append(pname, string(spec.Type), fmt.Sprintf("%v", spec.Default), strings.TrimSpace(bounds))
		}
		table.Render()
		fmt.Println()
	}
}

// runSweep expands one parameter over a value list and runs every variant on
// the worker pool.
func runSweep(ctx context.Context, runner *backtest.Runner, base domain.BacktestConfig, sweep string, workers int) {
	name, values, err := parseSweep(sweep)
	if err != nil {
		log.Fatalf("invalid -sweep: %v", err)
	}

	configs := make([]domain.BacktestConfig, 0, len(values))
	for _, v := range values {
		cfg := base
		cfg.Params = make(map[string]any, len(base.Params)+1)
		for k, pv := range base.Params {
			cfg.Params[k] = pv
		}
		cfg.Params[name] = v
		configs = append(configs, cfg)
	}

	pool := backtest.NewPool(runner, workers)
	results := pool.Run(ctx, configs)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header(name, "Status", "Return", "Sharpe", "MaxDD", "WinRate", "Trades", "FinalEquity")
	for i, br := range results {
		row := []any{fmt.Sprintf("%v", values[i])}
		switch {
		case br.Err != nil:
			row = append(row, "error: "+br.Err.Error(), "", "", "", "", "", "")
		case br.Result.Metrics == nil:
			row = append(row, string(br.Result.Status), "", "", "", "", "", "")
		default:
			m := br.Result.Metrics
			row = append(row,
				string(br.Result.Status),
				fmt.Sprintf("%.2f%%", m.TotalReturn*100),
				fmt.Sprintf("%.2f", m.SharpeRatio),
				fmt.Sprintf("%.2f%%", m.MaxDrawdown*100),
				fmt.Sprintf("%.1f%%", m.WinRate*100),
				strconv.Itoa(m.TotalTrades),
				fmt.Sprintf("%.2f", m.FinalEquity),
			)
		}
		table.Append(row...)
	}
	table.Render()
}

// parseSweep parses "name=v1,v2,v3" with numeric values.
func parseSweep(s string) (string, []any, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("expected name=v1,v2,..., got %q", s)
	}
	var values []any
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return "", nil, fmt.Errorf("value %q is not numeric", part)
		}
		values = append(values, f)
	}
	return name, values, nil
}

func printResult(res *domain.BacktestResult, withTrades bool) {
	fmt.Printf("run %s  status=%s  elapsed=%s\n",
		res.ID, res.Status, res.CompletedAt.Sub(res.StartedAt).Round(time.Millisecond))

	if res.Failure != nil {
		fmt.Printf("failure: %s (%s, last bar %d)\n",
			res.Failure.Message, res.Failure.Kind, res.Failure.LastBar)
	}
	for _, w := range res.Warnings {
		fmt.Printf("warning: bar %d %s: %s\n", w.Bar, w.Kind, w.Message)
	}

	if res.Metrics != nil {
		m := res.Metrics
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Metric", "Value")
		table.Append("Total return", fmt.Sprintf("%.2f%%", m.TotalReturn*100))
		table.Append("Annualized return", fmt.Sprintf("%.2f%%", m.AnnualizedReturn*100))
		table.Append("Volatility", fmt.Sprintf("%.2f%%", m.Volatility*100))
		table.Append("Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio))
		table.Append("Sortino ratio", fmt.Sprintf("%.2f", m.SortinoRatio))
		table.Append("Max drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100))
		table.Append("Win rate", fmt.Sprintf("%.1f%%", m.WinRate*100))
		if m.ProfitFactor != nil {
			table.Append("Profit factor", fmt.Sprintf("%.2f", *m.ProfitFactor))
		} else {
			table.Append("Profit factor", "n/a")
		}
		if m.Alpha != nil && m.Beta != nil {
			table.Append("Alpha (ann.)", fmt.Sprintf("%.4f", *m.Alpha))
			table.Append("Beta", fmt.Sprintf("%.2f", *m.Beta))
		}
		table.Append("Trades", strconv.Itoa(m.TotalTrades))
		table.Append("Final equity", fmt.Sprintf("%.2f", m.FinalEquity))
		table.Render()
	}

	if withTrades && len(res.Trades) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Date", "Symbol", "Action", "Qty", "Price", "Commission", "PnL", "Note")
		for _, f := range res.Trades {
			pnl := ""
			if f.RealizedPnL != nil {
				pnl = fmt.Sprintf("%.2f", *f.RealizedPnL)
			}
			table.Append(
				f.Timestamp.Format("2006-01-02"),
				f.Symbol,
				string(f.Action),
				fmt.Sprintf("%.2f", f.Quantity),
				fmt.Sprintf("%.4f", f.Price),
				fmt.Sprintf("%.2f", f.Commission),
				pnl,
				f.Warning,
			)
		}
		table.Render()
	}
}
