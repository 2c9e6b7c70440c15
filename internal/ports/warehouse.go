package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// Warehouse es el almacén analítico de tablas normalizadas y derivadas.
// Trades y resoluciones son append-only; las derivadas (posiciones, P&L por
// wallet) se reconstruyen en una tabla staging y se intercambian de forma
// atómica, nunca se mutan en sitio.
type Warehouse interface {
	// InsertTrades añade trades deduplicados. Re-insertar las mismas keys
	// no debe multiplicar filas (el engine las colapsa sobre la key de dedup).
	InsertTrades(ctx context.Context, trades []domain.Trade) error

	// InsertResolutions añade resoluciones. Append-only por contrato.
	InsertResolutions(ctx context.Context, resolutions []domain.Resolution) error

	// TradesForWallet devuelve el conjunto deduplicado de trades de una wallet.
	TradesForWallet(ctx context.Context, wallet string) ([]domain.Trade, error)

	// Resolutions devuelve resoluciones para los condition IDs canónicos dados.
	Resolutions(ctx context.Context, conditionIDs []string) (map[string]domain.Resolution, error)

	// WalletSummaries devuelve los resúmenes canónicos de P&L guardados para
	// las wallets dadas (los de la última reconstrucción).
	WalletSummaries(ctx context.Context, wallets []string) ([]domain.WalletPnLSummary, error)

	// RebuildPositions escribe el set de posiciones de una run en staging,
	// lo valida y lo intercambia atómicamente como canónico.
	RebuildPositions(ctx context.Context, runID string, positions []domain.Position) error

	// RebuildWalletPnL hace lo mismo con la tabla resumen por wallet.
	RebuildWalletPnL(ctx context.Context, runID string, summaries []domain.WalletPnLSummary) error

	// CoverageCounts reporta la completitud global del warehouse: trades
	// totales, mercados distintos, mercados con fila de resolución.
	CoverageCounts(ctx context.Context) (WarehouseCoverage, error)

	Close() error
}

// WarehouseCoverage es la materia prima del informe de cobertura.
type WarehouseCoverage struct {
	Trades            uint64
	Markets           uint64
	ResolvedMarkets   uint64
	Positions         uint64
	ResolvedPositions uint64
}
