package pipeline

// pipeline.go: orquestador del batch.
//
// Una run: para cada wallet pedida, bajar registros crudos de cada fuente
// (retomando desde checkpoints), normalizar, dedup, persistir trades,
// agregar a posiciones, join con resoluciones, calcular P&L, y reconstruir
// las tablas derivadas del warehouse vía staging + swap atómico. Las wallets
// van por un pool de workers; una wallet fallida se registra y no bloquea al
// resto.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Config controla una run del pipeline.
type Config struct {
	Workers   int // paralelismo a nivel wallet (0 = 8)
	Reconcile ReconcileConfig
}

// Pipeline cablea las etapas del batch con sus adapters.
type Pipeline struct {
	cfg         Config
	sources     []ports.TradeSource
	resolutions ports.ResolutionSource
	warehouse   ports.Warehouse
	prices      ports.MarkPriceProvider
	reference   ports.ReferenceProvider
	checkpoints ports.CheckpointStore

	mu       sync.Mutex
	resCache map[string]domain.Resolution // condition id → resolución, compartida entre wallets
}

// New crea un Pipeline con todas las dependencias inyectadas desde cmd/.
func New(
	cfg Config,
	sources []ports.TradeSource,
	resolutions ports.ResolutionSource,
	warehouse ports.Warehouse,
	prices ports.MarkPriceProvider,
	reference ports.ReferenceProvider,
	checkpoints ports.CheckpointStore,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Reconcile.PassTolerance.IsZero() && cfg.Reconcile.WarnTolerance.IsZero() {
		cfg.Reconcile = DefaultReconcileConfig()
	}
	return &Pipeline{
		cfg:         cfg,
		sources:     sources,
		resolutions: resolutions,
		warehouse:   warehouse,
		prices:      prices,
		reference:   reference,
		checkpoints: checkpoints,
		resCache:    make(map[string]domain.Resolution),
	}
}

// WalletResult es el resultado del batch de una wallet.
type WalletResult struct {
	Wallet    string
	Summary   domain.WalletPnLSummary
	Positions []domain.PositionPnL
	Norm      NormalizeStats
	Dedup     DedupStats
	Resolve   ResolveStats
	PnL       PnLStats
	Conflicts []Conflict // keys excluidas del cálculo, para revisión manual
	Failed    int        // fetches de fuente que agotaron reintentos
	Err       error
}

// RunResult agrega una run completa del pipeline.
type RunResult struct {
	RunID    string
	Wallets  []WalletResult
	Coverage CoverageReport
	Duration time.Duration
	Failed   int // wallets que abortaron
}

// Run procesa las wallets dadas de punta a punta y reconstruye las tablas
// derivadas. Los problemas locales de etapa (IDs malos, conflictos, precios
// ausentes) se cuentan, no son fatales; una wallet solo falla por errores
// estructurales.
func (p *Pipeline) Run(ctx context.Context, wallets []string) (*RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()

	slog.Info("pipeline run starting",
		"run_id", runID,
		"wallets", len(wallets),
		"sources", len(p.sources),
		"workers", p.cfg.Workers,
	)

	results := p.processWalletsConcurrent(ctx, wallets)

	var allPositions []domain.Position
	var allAnnotated []domain.PositionPnL
	var summaries []domain.WalletPnLSummary
	var norm NormalizeStats
	var dedup DedupStats
	var resolve ResolveStats
	var pnl PnLStats
	failedFetches := 0
	failedWallets := 0

	for _, r := range results {
		if r.Err != nil {
			failedWallets++
			slog.Error("pipeline: wallet failed", "wallet", r.Wallet, "err", r.Err)
			continue
		}
		for _, ann := range r.Positions {
			allPositions = append(allPositions, ann.Position)
		}
		allAnnotated = append(allAnnotated, r.Positions...)
		summaries = append(summaries, r.Summary)

		norm.Input += r.Norm.Input
		norm.Usable += r.Norm.Usable
		norm.UnresolvableID += r.Norm.UnresolvableID
		norm.PlaceholderID += r.Norm.PlaceholderID
		dedup.Input += r.Dedup.Input
		dedup.Output += r.Dedup.Output
		dedup.DuplicatesCollapsed += r.Dedup.DuplicatesCollapsed
		dedup.ConflictingDuplicates += r.Dedup.ConflictingDuplicates
		resolve.Positions += r.Resolve.Positions
		resolve.Resolved += r.Resolve.Resolved
		resolve.Unresolved += r.Resolve.Unresolved
		resolve.ExcludedResolutions += r.Resolve.ExcludedResolutions
		pnl.Positions += r.PnL.Positions
		pnl.Resolved += r.PnL.Resolved
		pnl.Closed += r.PnL.Closed
		pnl.Open += r.PnL.Open
		pnl.MissingPriceFeed += r.PnL.MissingPriceFeed
		pnl.PriceFetchErrors += r.PnL.PriceFetchErrors
		failedFetches += r.Failed
	}

	// Reconstruir derivadas solo con las wallets que completaron. Un fallo
	// estructural de escritura aborta la run: una tabla derivada a medias
	// nunca debe volverse canónica.
	if p.warehouse != nil && len(summaries) > 0 {
		if err := p.warehouse.RebuildPositions(ctx, runID, allPositions); err != nil {
			return nil, fmt.Errorf("pipeline.Run: rebuild positions: %w", err)
		}
		if err := p.warehouse.RebuildWalletPnL(ctx, runID, summaries); err != nil {
			return nil, fmt.Errorf("pipeline.Run: rebuild wallet pnl: %w", err)
		}
	}

	result := &RunResult{
		RunID:    runID,
		Wallets:  results,
		Coverage: BuildCoverage(norm, dedup, resolve, pnl, failedFetches),
		Duration: time.Since(start),
		Failed:   failedWallets,
	}

	slog.Info("pipeline run complete",
		"run_id", runID,
		"wallets_ok", len(summaries),
		"wallets_failed", failedWallets,
		"trades_usable", norm.Usable,
		"positions", resolve.Positions,
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, nil
}

// processWalletsConcurrent reparte las wallets sobre un pool de workers.
// Cada worker posee wallets disjuntas, así que dos workers nunca escriben
// keys solapadas.
func (p *Pipeline) processWalletsConcurrent(ctx context.Context, wallets []string) []WalletResult {
	workCh := make(chan string, len(wallets))
	resultCh := make(chan WalletResult, len(wallets))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wallet := range workCh {
				resultCh <- p.processWallet(ctx, wallet)
			}
		}()
	}

	for _, w := range wallets {
		workCh <- w
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]WalletResult, 0, len(wallets))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

// processWallet ejecuta todas las etapas para una wallet.
func (p *Pipeline) processWallet(ctx context.Context, wallet string) WalletResult {
	res := WalletResult{Wallet: wallet}

	canonical, err := domain.NormalizeWallet(wallet)
	if err != nil {
		res.Err = fmt.Errorf("pipeline.processWallet: %w", err)
		return res
	}
	res.Wallet = canonical

	raw, failed := p.fetchWalletRecords(ctx, wallet)
	res.Failed = failed

	trades, normStats := Normalize(raw)
	res.Norm = normStats

	deduped, conflicts, dedupStats := Dedup(trades)
	res.Dedup = dedupStats
	res.Conflicts = conflicts

	if p.warehouse != nil && len(deduped) > 0 {
		if err := p.warehouse.InsertTrades(ctx, deduped); err != nil {
			res.Err = fmt.Errorf("pipeline.processWallet: insert trades: %w", err)
			return res
		}
	}

	// Las posiciones se agregan sobre el historial canónico completo, no
	// sobre lo bajado esta run: con checkpoints las fuentes devuelven solo
	// los fills posteriores al cursor, y reconstruir desde ese fragmento
	// borraría el P&L histórico de la wallet.
	history := deduped
	if p.warehouse != nil {
		stored, err := p.warehouse.TradesForWallet(ctx, canonical)
		if err != nil {
			res.Err = fmt.Errorf("pipeline.processWallet: read trade history: %w", err)
			return res
		}
		history = stored
	}

	positions := Aggregate(history)

	resolutions, err := p.fetchResolutions(ctx, positions)
	if err != nil {
		res.Err = fmt.Errorf("pipeline.processWallet: fetch resolutions: %w", err)
		return res
	}

	annotated, resolveStats := Resolve(positions, resolutions)
	res.Resolve = resolveStats

	withPnL, summaries, pnlStats := ComputePnL(ctx, annotated, p.prices)
	res.Positions = withPnL
	res.PnL = pnlStats

	if len(summaries) > 0 {
		res.Summary = summaries[0]
	} else {
		res.Summary = domain.WalletPnLSummary{Wallet: canonical}
	}

	return res
}

// fetchWalletRecords baja registros crudos de cada fuente, retomando cada
// una desde su checkpoint. Una fuente que falla tras reintentos se cuenta,
// pero los registros que alcanzó a devolver y su cursor avanzado se
// conservan; el resto queda pendiente para la siguiente run.
func (p *Pipeline) fetchWalletRecords(ctx context.Context, wallet string) ([]domain.RawRecord, int) {
	var all []domain.RawRecord
	failed := 0

	for _, src := range p.sources {
		job := "ingest:" + src.Name()

		cursor := ""
		if p.checkpoints != nil {
			c, err := p.checkpoints.Get(ctx, job, wallet)
			if err != nil {
				slog.Warn("pipeline: checkpoint read failed, starting from scratch",
					"job", job, "wallet", wallet, "err", err)
			} else {
				cursor = c
			}
		}

		records, next, err := src.FetchWalletRecords(ctx, wallet, cursor)
		if err != nil {
			failed++
			slog.Warn("pipeline: source fetch failed",
				"source", src.Name(), "wallet", wallet, "err", err,
				"partial_records", len(records))
		}

		// El progreso parcial también cuenta: una fuente que falló a mitad
		// puede devolver registros ya bajados y un cursor avanzado, y la
		// próxima run retoma en el chunk fallido en vez de rebajarlo todo.
		all = append(all, records...)

		if p.checkpoints != nil && next != "" && next != cursor {
			if err := p.checkpoints.Put(ctx, job, wallet, next); err != nil {
				slog.Warn("pipeline: checkpoint write failed",
					"job", job, "wallet", wallet, "err", err)
			}
		}
	}

	return all, failed
}

// fetchResolutions devuelve resoluciones para cada mercado distinto del set
// de posiciones, consultando primero la cache compartida.
func (p *Pipeline) fetchResolutions(ctx context.Context, positions []domain.Position) (map[string]domain.Resolution, error) {
	out := make(map[string]domain.Resolution)
	var missing []string

	seen := make(map[string]bool)
	for _, pos := range positions {
		if seen[pos.ConditionID] {
			continue
		}
		seen[pos.ConditionID] = true

		p.mu.Lock()
		r, ok := p.resCache[pos.ConditionID]
		p.mu.Unlock()
		if ok {
			out[pos.ConditionID] = r
		} else {
			missing = append(missing, pos.ConditionID)
		}
	}

	// Las resoluciones ya persistidas valen tanto como las recién bajadas:
	// el warehouse calienta la cache antes de gastar llamadas al RPC/REST.
	if p.warehouse != nil && len(missing) > 0 {
		stored, err := p.warehouse.Resolutions(ctx, missing)
		if err != nil {
			slog.Warn("pipeline: warehouse resolutions read failed", "err", err)
		} else {
			pending := missing[:0]
			for _, id := range missing {
				if r, ok := stored[id]; ok {
					out[id] = r
					p.mu.Lock()
					p.resCache[id] = r
					p.mu.Unlock()
				} else {
					pending = append(pending, id)
				}
			}
			missing = pending
		}
	}

	if len(missing) == 0 || p.resolutions == nil {
		return out, nil
	}

	var toStore []domain.Resolution
	for _, id := range missing {
		r, err := p.resolutions.FetchResolution(ctx, id)
		if err != nil {
			// Se trata como sin resolver esta run; se reintenta en la siguiente
			slog.Warn("pipeline: resolution fetch failed", "condition_id", id, "err", err)
			continue
		}
		out[id] = r
		if r.IsResolved() {
			toStore = append(toStore, r)
		}

		p.mu.Lock()
		p.resCache[id] = r
		p.mu.Unlock()
	}

	if p.warehouse != nil && len(toStore) > 0 {
		if err := p.warehouse.InsertResolutions(ctx, toStore); err != nil {
			return nil, fmt.Errorf("store resolutions: %w", err)
		}
	}

	return out, nil
}

// ResetCheckpoints borra los cursores de ingesta de las wallets dadas para
// que la próxima run reconstruya su historial desde cero.
func (p *Pipeline) ResetCheckpoints(ctx context.Context, wallets []string) error {
	if p.checkpoints == nil {
		return nil
	}
	for _, src := range p.sources {
		job := "ingest:" + src.Name()
		for _, w := range wallets {
			if err := p.checkpoints.Delete(ctx, job, w); err != nil {
				return fmt.Errorf("pipeline.ResetCheckpoints: %s/%s: %w", job, w, err)
			}
		}
	}
	return nil
}

// ReconcileStored ejecuta solo el validador, contra los resúmenes canónicos
// que dejó la última reconstrucción. No ingesta ni recalcula nada.
func (p *Pipeline) ReconcileStored(ctx context.Context, wallets []string) ([]domain.ReconciliationReport, error) {
	if p.warehouse == nil {
		return nil, fmt.Errorf("pipeline.ReconcileStored: no warehouse configured")
	}

	canonical := make([]string, 0, len(wallets))
	for _, w := range wallets {
		c, err := domain.NormalizeWallet(w)
		if err != nil {
			return nil, fmt.Errorf("pipeline.ReconcileStored: %w", err)
		}
		canonical = append(canonical, c)
	}

	summaries, err := p.warehouse.WalletSummaries(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("pipeline.ReconcileStored: %w", err)
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("pipeline.ReconcileStored: no stored summaries for the given wallets")
	}

	return p.RunReconciliation(ctx, summaries)
}

// RunReconciliation ejecuta solo el validador sobre resúmenes ya
// calculados.
func (p *Pipeline) RunReconciliation(ctx context.Context, summaries []domain.WalletPnLSummary) ([]domain.ReconciliationReport, error) {
	if p.reference == nil {
		return nil, fmt.Errorf("pipeline.RunReconciliation: no reference provider configured")
	}

	reports := make([]domain.ReconciliationReport, 0, len(summaries))
	for _, s := range summaries {
		ref, err := p.reference.ReferenceTotalPnL(ctx, s.Wallet)
		if err != nil {
			slog.Warn("reconcile: reference fetch failed", "wallet", s.Wallet, "err", err)
			continue
		}
		report := Reconcile(p.cfg.Reconcile, s, ref)

		logAttrs := []any{
			"wallet", s.Wallet,
			"computed", s.Total.StringFixed(2),
			"reference", ref.StringFixed(2),
			"variance_pct", report.Variance.Mul(decimalHundred).StringFixed(2),
			"dominant", report.DominantComponent,
		}
		switch report.Verdict {
		case domain.ReconPass:
			slog.Info("reconcile: PASS", logAttrs...)
		case domain.ReconWarn:
			slog.Warn("reconcile: WARN", logAttrs...)
		default:
			slog.Error("reconcile: FAIL", logAttrs...)
		}

		reports = append(reports, report)
	}
	return reports, nil
}
