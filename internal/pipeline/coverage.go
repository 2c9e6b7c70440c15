package pipeline

// coverage.go: informe de completitud.
//
// El informe de cobertura corre siempre, incluso con jobs parcialmente
// fallidos aguas arriba. El operador tiene que poder ver qué fracción del
// dato es usable antes de fiarse de ningún número de P&L.

import "github.com/shopspring/decimal"

// CoverageReport es el resumen de completitud legible por máquina.
type CoverageReport struct {
	TradesInput     int             `json:"trades_input"`
	TradesUsable    int             `json:"trades_usable"`
	UnresolvableIDs int             `json:"unresolvable_ids"`
	PlaceholderIDs  int             `json:"placeholder_ids"`
	UsableTradeFrac decimal.Decimal `json:"usable_trade_fraction"`

	ConflictingDuplicates int `json:"conflicting_duplicates"`

	Positions         int             `json:"positions"`
	ResolvedPositions int             `json:"resolved_positions"`
	ResolutionFrac    decimal.Decimal `json:"resolution_fraction"`

	OpenPositions    int             `json:"open_positions"`
	MissingPriceFeed int             `json:"missing_price_feed"`
	MarkPriceFrac    decimal.Decimal `json:"mark_price_fraction"`

	FailedFetches int `json:"failed_fetches"`
}

// BuildCoverage ensambla el informe de cobertura con las stats por etapa.
func BuildCoverage(norm NormalizeStats, dedup DedupStats, resolve ResolveStats, pnl PnLStats, failedFetches int) CoverageReport {
	r := CoverageReport{
		TradesInput:           norm.Input,
		TradesUsable:          norm.Usable,
		UnresolvableIDs:       norm.UnresolvableID,
		PlaceholderIDs:        norm.PlaceholderID,
		ConflictingDuplicates: dedup.ConflictingDuplicates,
		Positions:             resolve.Positions,
		ResolvedPositions:     resolve.Resolved,
		OpenPositions:         pnl.Open,
		MissingPriceFeed:      pnl.MissingPriceFeed,
		FailedFetches:         failedFetches,
	}

	r.UsableTradeFrac = fraction(norm.Usable, norm.Input)
	r.ResolutionFrac = fraction(resolve.Resolved, resolve.Positions)
	r.MarkPriceFrac = fraction(pnl.Open-pnl.MissingPriceFeed, pnl.Open)

	return r
}

func fraction(num, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den)))
}
