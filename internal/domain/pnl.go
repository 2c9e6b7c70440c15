package domain

import "github.com/shopspring/decimal"

// PositionPnL es una posición anotada con su estado de resolución y los
// componentes de P&L que aplican a ese estado. Realized y Unrealized son nil
// cuando no son computables; nil es "desconocido", que no es lo mismo que
// cero.
type PositionPnL struct {
	Position
	State        PositionState
	Resolved     bool
	Payout       *Resolution      // nil mientras el mercado no resuelva
	WinningIndex int              // válido solo cuando Resolved
	MarkPrice    *decimal.Decimal // nil cuando ningún feed cubre el mercado
	Realized     *decimal.Decimal
	Unrealized   *decimal.Decimal
}

// WalletPnLSummary es el rollup por wallet. Total = Realized + Unrealized,
// donde cada lado suma solo las posiciones que legítimamente cubre. Los
// contadores Missing* dicen cuán completo es el número antes de fiarse de él.
type WalletPnLSummary struct {
	Wallet string

	Realized   decimal.Decimal // posiciones resueltas + cerradas
	Unrealized decimal.Decimal // posiciones abiertas con mark disponible
	Total      decimal.Decimal

	ResolvedPositions int
	ClosedPositions   int
	OpenPositions     int
	MissingPriceFeed  int // abiertas sin mark price
}

// ReconVerdict clasifica una pasada de reconciliación.
type ReconVerdict string

const (
	ReconPass ReconVerdict = "PASS"
	ReconWarn ReconVerdict = "WARN"
	ReconFail ReconVerdict = "FAIL"
)

// ReconciliationReport compara el total calculado de una wallet contra una
// referencia externa. Solo reporta varianza; los valores calculados nunca
// se ajustan para cuadrar con la referencia.
type ReconciliationReport struct {
	Wallet             string          `json:"wallet"`
	ComputedTotal      decimal.Decimal `json:"computed_total"`
	ComputedRealized   decimal.Decimal `json:"computed_realized"`
	ComputedUnrealized decimal.Decimal `json:"computed_unrealized"`
	ReferenceTotal     decimal.Decimal `json:"reference_total"`
	Variance           decimal.Decimal `json:"variance"` // fracción 0–1 (0.05 = 5%)
	Verdict            ReconVerdict    `json:"verdict"`
	DominantComponent  string          `json:"dominant_component"` // "realized" | "unrealized"
	MissingPriceFeed   int             `json:"missing_price_feed"`
}
