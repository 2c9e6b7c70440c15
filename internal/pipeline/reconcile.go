package pipeline

// reconcile.go: validador de reconciliación.
//
// Compara el total calculado de una wallet contra una referencia
// independiente y clasifica la varianza. Reporta; nunca ajusta. Las
// tolerancias vienen de config; los defaults 5%/10% son una decisión de
// producto, no una constante derivada de nada.

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

var decimalHundred = decimal.NewFromInt(100)

// ReconcileConfig contiene las bandas de tolerancia de varianza como
// fracciones (0.05 = 5%).
type ReconcileConfig struct {
	PassTolerance decimal.Decimal
	WarnTolerance decimal.Decimal
}

// DefaultReconcileConfig devuelve los defaults de trabajo: PASS hasta 5%,
// WARN hasta 10%, FAIL más allá.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		PassTolerance: decimal.NewFromFloat(0.05),
		WarnTolerance: decimal.NewFromFloat(0.10),
	}
}

// Reconcile compara un resumen calculado contra un total de referencia.
func Reconcile(cfg ReconcileConfig, summary domain.WalletPnLSummary, reference decimal.Decimal) domain.ReconciliationReport {
	report := domain.ReconciliationReport{
		Wallet:             summary.Wallet,
		ComputedTotal:      summary.Total,
		ComputedRealized:   summary.Realized,
		ComputedUnrealized: summary.Unrealized,
		ReferenceTotal:     reference,
		MissingPriceFeed:   summary.MissingPriceFeed,
	}

	diff := summary.Total.Sub(reference).Abs()
	switch {
	case reference.IsZero() && summary.Total.IsZero():
		report.Variance = decimal.Zero
	case reference.IsZero():
		// Sin porcentaje significativo contra referencia cero; se reporta 100%
		report.Variance = decimal.NewFromInt(1)
	default:
		report.Variance = diff.Div(reference.Abs())
	}

	switch {
	case report.Variance.LessThanOrEqual(cfg.PassTolerance):
		report.Verdict = domain.ReconPass
	case report.Variance.LessThanOrEqual(cfg.WarnTolerance):
		report.Verdict = domain.ReconWarn
	default:
		report.Verdict = domain.ReconFail
	}

	// Qué componente domina el total calculado: el primer sitio donde mirar
	// cuando la varianza excede la tolerancia.
	if summary.Realized.Abs().GreaterThanOrEqual(summary.Unrealized.Abs()) {
		report.DominantComponent = "realized"
	} else {
		report.DominantComponent = "unrealized"
	}

	return report
}
