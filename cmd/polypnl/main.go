package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/checkpoint"
	"github.com/alejandrodnm/polypnl/internal/adapters/pricing"
	"github.com/alejandrodnm/polypnl/internal/adapters/reference"
	"github.com/alejandrodnm/polypnl/internal/adapters/report"
	"github.com/alejandrodnm/polypnl/internal/adapters/sources"
	"github.com/alejandrodnm/polypnl/internal/adapters/warehouse"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	walletsArg := flag.String("wallets", "", "comma-separated wallet addresses to process")
	reconcile := flag.Bool("reconcile", false, "validate stored totals against the reference API (no ingestion)")
	coverage := flag.Bool("coverage", false, "print warehouse-wide coverage and exit (no ingestion)")
	rebuild := flag.Bool("rebuild", false, "clear ingest checkpoints so the wallets re-ingest from scratch")
	strict := flag.Bool("strict", false, "exit non-zero if any reconciliation FAILs")
	jsonOut := flag.Bool("json", false, "machine-readable output")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wh, err := warehouse.New(warehouse.Config{
		Addr:     cfg.Warehouse.Addr,
		Database: cfg.Warehouse.Database,
		Username: cfg.Warehouse.Username,
		Password: cfg.Warehouse.Password,
	})
	if err != nil {
		slog.Error("failed to connect to warehouse", "err", err, "addr", cfg.Warehouse.Addr)
		os.Exit(1)
	}
	defer wh.Close()

	out := report.NewConsole(*jsonOut)

	// Modo solo-lectura: cobertura del warehouse sin ejecutar ingesta
	if *coverage {
		cov, err := wh.CoverageCounts(ctx)
		if err != nil {
			slog.Error("coverage query failed", "err", err)
			os.Exit(1)
		}
		if err := out.PrintWarehouseCoverage(cov); err != nil {
			slog.Error("coverage output failed", "err", err)
			os.Exit(1)
		}
		return
	}

	wallets := splitWallets(*walletsArg)
	if len(wallets) == 0 {
		slog.Error("no wallets given — use -wallets 0xabc...,0xdef...")
		os.Exit(1)
	}

	slog.Info("polypnl starting",
		"config", *configPath,
		"wallets", len(wallets),
		"reconcile", *reconcile,
		"strict", *strict,
	)

	checkpoints, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.DSN)
	if err != nil {
		slog.Error("failed to open checkpoint store", "err", err, "dsn", cfg.Checkpoint.DSN)
		os.Exit(1)
	}
	defer checkpoints.Close()

	srcs, resolutions, prices := buildSources(cfg)

	p := pipeline.New(
		pipeline.Config{
			Workers: cfg.Pipeline.Workers,
			Reconcile: pipeline.ReconcileConfig{
				PassTolerance: decimal.NewFromFloat(cfg.Reconcile.PassTolerance),
				WarnTolerance: decimal.NewFromFloat(cfg.Reconcile.WarnTolerance),
			},
		},
		srcs,
		resolutions,
		wh,
		prices,
		reference.NewDataAPIReference(cfg.Sources.DataAPIBase),
		checkpoints,
	)

	// Modo validador: reconcilia los resúmenes ya persistidos, sin ingesta
	if *reconcile {
		reports, err := p.ReconcileStored(ctx, wallets)
		if err != nil {
			slog.Error("reconciliation failed", "err", err)
			os.Exit(1)
		}
		if err := out.PrintReconciliation(reports); err != nil {
			slog.Error("output failed", "err", err)
			os.Exit(1)
		}
		if *strict && anyFailed(reports) {
			slog.Error("reconciliation FAIL in strict mode")
			os.Exit(2)
		}
		return
	}

	if *rebuild {
		if err := p.ResetCheckpoints(ctx, wallets); err != nil {
			slog.Error("failed to reset checkpoints", "err", err)
			os.Exit(1)
		}
		slog.Info("ingest checkpoints cleared", "wallets", len(wallets))
	}

	result, err := p.Run(ctx, wallets)
	if err != nil {
		slog.Error("pipeline run failed", "err", err)
		os.Exit(1)
	}

	ok := true
	if err := out.PrintSummaries(collectSummaries(result)); err != nil {
		slog.Error("output failed", "err", err)
		ok = false
	}
	if err := out.PrintCoverage(result.Coverage); err != nil {
		slog.Error("output failed", "err", err)
		ok = false
	}

	if !ok || result.Failed > 0 {
		os.Exit(1)
	}
}

// buildSources cablea las fuentes de ingesta según lo configurado. CLOB va
// siempre; subgraph y on-chain solo si hay endpoint. La resolución viene del
// contrato CTF cuando hay RPC (ground truth), si no del endpoint de mercados.
func buildSources(cfg *config.Config) ([]ports.TradeSource, ports.ResolutionSource, ports.MarkPriceProvider) {
	srcs := []ports.TradeSource{sources.NewCLOBSource(cfg.Sources.DataAPIBase)}

	if cfg.Sources.SubgraphBase != "" {
		srcs = append(srcs, sources.NewSubgraphSource(cfg.Sources.SubgraphBase))
	}
	if cfg.Sources.RPCURL != "" {
		onchain, err := sources.NewOnChainSource(cfg.Sources.RPCURL, cfg.Sources.StartBlock)
		if err != nil {
			slog.Warn("on-chain source unavailable, continuing without it", "err", err)
		} else {
			srcs = append(srcs, onchain)
		}
	}

	rest := sources.NewRESTResolutionSource(cfg.Sources.CLOBBase)
	prices := pricing.NewCLOBPrices(cfg.Sources.CLOBBase, rest.ResolveToken)

	var resolutions ports.ResolutionSource = rest
	if cfg.Sources.RPCURL != "" {
		ctf, err := sources.NewOnChainResolutionSource(cfg.Sources.RPCURL)
		if err != nil {
			slog.Warn("ctf resolution source unavailable, using market endpoint", "err", err)
		} else {
			resolutions = ctf
		}
	}

	return srcs, resolutions, prices
}

func collectSummaries(result *pipeline.RunResult) []domain.WalletPnLSummary {
	var out []domain.WalletPnLSummary
	for _, w := range result.Wallets {
		if w.Err == nil {
			out = append(out, w.Summary)
		}
	}
	return out
}

func anyFailed(reports []domain.ReconciliationReport) bool {
	for _, r := range reports {
		if r.Verdict == domain.ReconFail {
			return true
		}
	}
	return false
}

func splitWallets(arg string) []string {
	var out []string
	for _, w := range strings.Split(arg, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
