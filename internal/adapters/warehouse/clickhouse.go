// Package warehouse es la capa de persistencia en ClickHouse: tablas
// append-only de trades y resoluciones, más derivadas que se reconstruyen en
// una tabla staging con swap atómico EXCHANGE TABLES para que los lectores
// nunca vean una reconstrucción a medias.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Config contiene los parámetros de conexión a ClickHouse.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// ClickHouse implementa ports.Warehouse.
type ClickHouse struct {
	conn     driver.Conn
	database string
}

// New abre la conexión, hace ping y asegura que existan las tablas base.
func New(cfg Config) (*ClickHouse, error) {
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("warehouse.New: open: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("warehouse.New: ping: %w", err)
	}

	w := &ClickHouse{conn: conn, database: cfg.Database}
	if err := w.createTables(context.Background()); err != nil {
		return nil, fmt.Errorf("warehouse.New: create tables: %w", err)
	}
	return w, nil
}

var _ ports.Warehouse = (*ClickHouse)(nil)

// createTables aplica el schema base. trades usa ReplacingMergeTree sobre la
// key de dedup: re-ingestar los mismos fills colapsa en vez de multiplicar
// conteos, así la ingesta también es idempotente en la capa de storage.
func (w *ClickHouse) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			tx_id         String,
			wallet        FixedString(40),
			condition_id  FixedString(64),
			outcome_index UInt8,
			share_delta   Decimal(38, 6),
			cash_delta    Decimal(38, 6),
			ts            DateTime,
			source        LowCardinality(String),
			ingested_at   DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY (wallet, condition_id, outcome_index, tx_id)`,

		`CREATE TABLE IF NOT EXISTS resolutions (
			condition_id       FixedString(64),
			payout_numerators  Array(Decimal(38, 6)),
			payout_denominator Decimal(38, 6),
			resolved_at        DateTime,
			source             LowCardinality(String),
			ingested_at        DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY condition_id`,

		`CREATE TABLE IF NOT EXISTS positions (
			wallet        FixedString(40),
			condition_id  FixedString(64),
			outcome_index UInt8,
			net_shares    Decimal(38, 6),
			cost_basis    Decimal(38, 6),
			trade_count   UInt32,
			run_id        String,
			built_at      DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (wallet, condition_id, outcome_index)`,

		`CREATE TABLE IF NOT EXISTS wallet_pnl (
			wallet             FixedString(40),
			realized_pnl       Decimal(38, 6),
			unrealized_pnl     Decimal(38, 6),
			total_pnl          Decimal(38, 6),
			resolved_positions UInt32,
			closed_positions   UInt32,
			open_positions     UInt32,
			missing_price_feed UInt32,
			run_id             String,
			built_at           DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY wallet`,
	}

	for _, stmt := range stmts {
		if err := w.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertTrades añade trades deduplicados en un batch.
func (w *ClickHouse) InsertTrades(ctx context.Context, trades []domain.Trade) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO trades (tx_id, wallet, condition_id, outcome_index, share_delta, cash_delta, ts, source)
	`)
	if err != nil {
		return fmt.Errorf("warehouse.InsertTrades: prepare: %w", err)
	}

	for _, t := range trades {
		if err := batch.Append(
			t.TxID,
			t.Wallet,
			t.ConditionID,
			uint8(t.OutcomeIndex),
			t.ShareDelta,
			t.CashDelta,
			t.Timestamp,
			t.Source.String(),
		); err != nil {
			return fmt.Errorf("warehouse.InsertTrades: append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("warehouse.InsertTrades: send: %w", err)
	}
	return nil
}

// InsertResolutions añade resoluciones. Append-only por contrato: un mercado
// resuelto no se re-resuelve.
func (w *ClickHouse) InsertResolutions(ctx context.Context, resolutions []domain.Resolution) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO resolutions (condition_id, payout_numerators, payout_denominator, resolved_at, source)
	`)
	if err != nil {
		return fmt.Errorf("warehouse.InsertResolutions: prepare: %w", err)
	}

	for _, r := range resolutions {
		if err := batch.Append(
			r.ConditionID,
			r.PayoutNumerators,
			r.PayoutDenominator,
			r.ResolvedAt,
			r.Source.String(),
		); err != nil {
			return fmt.Errorf("warehouse.InsertResolutions: append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("warehouse.InsertResolutions: send: %w", err)
	}
	return nil
}

// TradesForWallet devuelve el set deduplicado de trades de una wallet.
// FINAL fuerza el colapso del ReplacingMergeTree: las filas re-ingestadas
// nunca cuentan dos veces.
func (w *ClickHouse) TradesForWallet(ctx context.Context, wallet string) ([]domain.Trade, error) {
	rows, err := w.conn.Query(ctx, `
		SELECT tx_id, wallet, condition_id, outcome_index, share_delta, cash_delta, ts, source
		FROM trades FINAL
		WHERE wallet = ?
		ORDER BY ts
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("warehouse.TradesForWallet: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t       domain.Trade
			outcome uint8
			source  string
		)
		if err := rows.Scan(&t.TxID, &t.Wallet, &t.ConditionID, &outcome,
			&t.ShareDelta, &t.CashDelta, &t.Timestamp, &source); err != nil {
			return nil, fmt.Errorf("warehouse.TradesForWallet: scan: %w", err)
		}
		t.OutcomeIndex = int(outcome)
		t.Source = sourceFromString(source)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse.TradesForWallet: %w", err)
	}
	return out, nil
}

// Resolutions devuelve resoluciones para los condition IDs canónicos dados.
func (w *ClickHouse) Resolutions(ctx context.Context, conditionIDs []string) (map[string]domain.Resolution, error) {
	rows, err := w.conn.Query(ctx, `
		SELECT condition_id, payout_numerators, payout_denominator, resolved_at, source
		FROM resolutions FINAL
		WHERE condition_id IN (?)
	`, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("warehouse.Resolutions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Resolution)
	for rows.Next() {
		var (
			r      domain.Resolution
			source string
		)
		if err := rows.Scan(&r.ConditionID, &r.PayoutNumerators, &r.PayoutDenominator,
			&r.ResolvedAt, &source); err != nil {
			return nil, fmt.Errorf("warehouse.Resolutions: scan: %w", err)
		}
		r.Source = sourceFromString(source)
		out[r.ConditionID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse.Resolutions: %w", err)
	}
	return out, nil
}

// WalletSummaries devuelve los resúmenes canónicos de wallet_pnl para el
// validador. Solo lee; nunca dispara ingesta ni recálculo.
func (w *ClickHouse) WalletSummaries(ctx context.Context, wallets []string) ([]domain.WalletPnLSummary, error) {
	rows, err := w.conn.Query(ctx, `
		SELECT wallet, realized_pnl, unrealized_pnl, total_pnl,
			resolved_positions, closed_positions, open_positions, missing_price_feed
		FROM wallet_pnl
		WHERE wallet IN (?)
		ORDER BY wallet
	`, wallets)
	if err != nil {
		return nil, fmt.Errorf("warehouse.WalletSummaries: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletPnLSummary
	for rows.Next() {
		var (
			s                              domain.WalletPnLSummary
			resolved, closed, open, missed uint32
		)
		if err := rows.Scan(&s.Wallet, &s.Realized, &s.Unrealized, &s.Total,
			&resolved, &closed, &open, &missed); err != nil {
			return nil, fmt.Errorf("warehouse.WalletSummaries: scan: %w", err)
		}
		s.ResolvedPositions = int(resolved)
		s.ClosedPositions = int(closed)
		s.OpenPositions = int(open)
		s.MissingPriceFeed = int(missed)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse.WalletSummaries: %w", err)
	}
	return out, nil
}

// RebuildPositions escribe el set de posiciones de la run en staging, lo
// valida y lo intercambia atómicamente.
func (w *ClickHouse) RebuildPositions(ctx context.Context, runID string, positions []domain.Position) error {
	staging := stagingName("positions", runID)

	if err := w.conn.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s AS positions`, staging)); err != nil {
		return fmt.Errorf("warehouse.RebuildPositions: create staging: %w", err)
	}
	defer w.dropQuietly(ctx, staging)

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (wallet, condition_id, outcome_index, net_shares, cost_basis, trade_count, run_id)
	`, staging))
	if err != nil {
		return fmt.Errorf("warehouse.RebuildPositions: prepare: %w", err)
	}
	for _, p := range positions {
		if err := batch.Append(
			p.Wallet, p.ConditionID, uint8(p.OutcomeIndex),
			p.NetShares, p.CostBasis, uint32(p.TradeCount), runID,
		); err != nil {
			return fmt.Errorf("warehouse.RebuildPositions: append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("warehouse.RebuildPositions: send: %w", err)
	}

	if err := w.validateRowCount(ctx, staging, uint64(len(positions))); err != nil {
		return fmt.Errorf("warehouse.RebuildPositions: %w", err)
	}

	if err := w.exchange(ctx, staging, "positions"); err != nil {
		return fmt.Errorf("warehouse.RebuildPositions: swap: %w", err)
	}

	slog.Info("warehouse: positions rebuilt", "run_id", runID, "rows", len(positions))
	return nil
}

// RebuildWalletPnL reconstruye la tabla resumen por wallet igual.
func (w *ClickHouse) RebuildWalletPnL(ctx context.Context, runID string, summaries []domain.WalletPnLSummary) error {
	staging := stagingName("wallet_pnl", runID)

	if err := w.conn.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s AS wallet_pnl`, staging)); err != nil {
		return fmt.Errorf("warehouse.RebuildWalletPnL: create staging: %w", err)
	}
	defer w.dropQuietly(ctx, staging)

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (wallet, realized_pnl, unrealized_pnl, total_pnl,
			resolved_positions, closed_positions, open_positions, missing_price_feed, run_id)
	`, staging))
	if err != nil {
		return fmt.Errorf("warehouse.RebuildWalletPnL: prepare: %w", err)
	}
	for _, s := range summaries {
		if err := batch.Append(
			s.Wallet, s.Realized, s.Unrealized, s.Total,
			uint32(s.ResolvedPositions), uint32(s.ClosedPositions),
			uint32(s.OpenPositions), uint32(s.MissingPriceFeed), runID,
		); err != nil {
			return fmt.Errorf("warehouse.RebuildWalletPnL: append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("warehouse.RebuildWalletPnL: send: %w", err)
	}

	if err := w.validateRowCount(ctx, staging, uint64(len(summaries))); err != nil {
		return fmt.Errorf("warehouse.RebuildWalletPnL: %w", err)
	}

	if err := w.exchange(ctx, staging, "wallet_pnl"); err != nil {
		return fmt.Errorf("warehouse.RebuildWalletPnL: swap: %w", err)
	}

	slog.Info("warehouse: wallet pnl rebuilt", "run_id", runID, "rows", len(summaries))
	return nil
}

// CoverageCounts reporta la completitud global del warehouse para el modo
// coverage. Tiene que seguir funcionando aunque una run fallara a medias,
// así que solo lee.
func (w *ClickHouse) CoverageCounts(ctx context.Context) (ports.WarehouseCoverage, error) {
	var cov ports.WarehouseCoverage

	row := w.conn.QueryRow(ctx, `
		SELECT
			(SELECT count() FROM trades FINAL),
			(SELECT uniqExact(condition_id) FROM trades FINAL),
			(SELECT uniqExact(condition_id) FROM resolutions FINAL WHERE payout_denominator > 0),
			(SELECT count() FROM positions),
			(SELECT count() FROM positions WHERE condition_id IN
				(SELECT condition_id FROM resolutions FINAL WHERE payout_denominator > 0))
	`)
	if err := row.Scan(&cov.Trades, &cov.Markets, &cov.ResolvedMarkets,
		&cov.Positions, &cov.ResolvedPositions); err != nil {
		return cov, fmt.Errorf("warehouse.CoverageCounts: %w", err)
	}
	return cov, nil
}

func (w *ClickHouse) Close() error {
	return w.conn.Close()
}

// validateRowCount comprueba que staging contiene exactamente lo escrito
// antes de permitir que se vuelva canónica.
func (w *ClickHouse) validateRowCount(ctx context.Context, table string, want uint64) error {
	var got uint64
	if err := w.conn.QueryRow(ctx, fmt.Sprintf(`SELECT count() FROM %s`, table)).Scan(&got); err != nil {
		return fmt.Errorf("validate %s: %w", table, err)
	}
	if got != want {
		return fmt.Errorf("validate %s: staging holds %d rows, wrote %d", table, got, want)
	}
	return nil
}

// exchange intercambia atómicamente staging y canónica. El dato viejo acaba
// bajo el nombre staging y lo borra el cleanup diferido.
func (w *ClickHouse) exchange(ctx context.Context, staging, canonical string) error {
	return w.conn.Exec(ctx, fmt.Sprintf(`EXCHANGE TABLES %s AND %s`, staging, canonical))
}

func (w *ClickHouse) dropQuietly(ctx context.Context, table string) {
	if err := w.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		slog.Warn("warehouse: drop staging failed", "table", table, "err", err)
	}
}

// stagingName construye el nombre de staging por run. Los guiones del UUID
// no son válidos en identificadores.
func stagingName(base, runID string) string {
	return fmt.Sprintf("%s_staging_%s", base, strings.ReplaceAll(runID, "-", ""))
}

func sourceFromString(s string) domain.Source {
	switch s {
	case "onchain":
		return domain.SourceOnChain
	case "clob":
		return domain.SourceCLOB
	default:
		return domain.SourceSubgraph
	}
}
