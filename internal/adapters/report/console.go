// Package report imprime los resultados del pipeline: resumen de P&L por
// wallet, informe de reconciliación y cobertura de datos. Soporta salida en
// tabla (humanos) o JSON (máquinas).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/ports"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa la salida del pipeline.
type Console struct {
	out      io.Writer
	jsonMode bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(jsonMode bool) *Console {
	return &Console{out: os.Stdout, jsonMode: jsonMode}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, jsonMode bool) *Console {
	return &Console{out: w, jsonMode: jsonMode}
}

// PrintSummaries imprime el P&L por wallet.
func (c *Console) PrintSummaries(summaries []domain.WalletPnLSummary) error {
	if c.jsonMode {
		return c.writeJSON(map[string]any{"wallets": summaries})
	}

	if len(summaries) == 0 {
		fmt.Fprintln(c.out, "no wallets processed")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Realized", "Unrealized", "Total", "Res", "Closed", "Open", "NoMark")

	total := decimal.Zero
	for _, s := range summaries {
		table.Append(
			shortWallet(s.Wallet),
			money(s.Realized),
			money(s.Unrealized),
			money(s.Total),
			fmt.Sprintf("%d", s.ResolvedPositions),
			fmt.Sprintf("%d", s.ClosedPositions),
			fmt.Sprintf("%d", s.OpenPositions),
			fmt.Sprintf("%d", s.MissingPriceFeed),
		)
		total = total.Add(s.Total)
	}
	table.Render()

	fmt.Fprintf(c.out, "  %d wallets — combined total: %s\n", len(summaries), money(total))
	fmt.Fprintln(c.out, "  Res/Closed/Open = posiciones por estado | NoMark = abiertas sin precio")
	return nil
}

// PrintReconciliation imprime el informe de reconciliación. Nunca corrige
// los valores calculados: solo reporta la varianza y su veredicto.
func (c *Console) PrintReconciliation(reports []domain.ReconciliationReport) error {
	if c.jsonMode {
		return c.writeJSON(map[string]any{"reconciliation": reports})
	}

	if len(reports) == 0 {
		fmt.Fprintln(c.out, "no reconciliation data")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Wallet", "Computed", "Reference", "Var%", "Verdict", "Driver")

	pass, warn, fail := 0, 0, 0
	for _, r := range reports {
		switch r.Verdict {
		case domain.ReconPass:
			pass++
		case domain.ReconWarn:
			warn++
		case domain.ReconFail:
			fail++
		}

		table.Append(
			shortWallet(r.Wallet),
			money(r.ComputedTotal),
			money(r.ReferenceTotal),
			r.Variance.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%",
			string(r.Verdict),
			r.DominantComponent,
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  PASS:%d WARN:%d FAIL:%d\n", pass, warn, fail)
	fmt.Fprintln(c.out, "  Driver = componente dominante del total (realized/unrealized)")

	for _, r := range reports {
		if r.Verdict == domain.ReconFail && r.MissingPriceFeed > 0 {
			fmt.Fprintf(c.out, "  !! %s: %d posiciones abiertas sin mark price — la varianza puede venir de ahí\n",
				shortWallet(r.Wallet), r.MissingPriceFeed)
		}
	}
	return nil
}

// PrintCoverage imprime el informe de cobertura. Se imprime siempre, incluso
// con jobs parcialmente fallidos: el operador necesita saber cuánto dato es
// usable antes de confiar en ningún número.
func (c *Console) PrintCoverage(cov pipeline.CoverageReport) error {
	if c.jsonMode {
		return c.writeJSON(map[string]any{"coverage": cov})
	}

	fmt.Fprintln(c.out, "=== COVERAGE ===")
	fmt.Fprintf(c.out, "  Trades:       %d input, %d usable (%s)\n",
		cov.TradesInput, cov.TradesUsable, percent(cov.UsableTradeFrac))
	fmt.Fprintf(c.out, "    unresolvable IDs: %d\n", cov.UnresolvableIDs)
	fmt.Fprintf(c.out, "    placeholder IDs:  %d\n", cov.PlaceholderIDs)
	fmt.Fprintf(c.out, "    conflicting dups: %d\n", cov.ConflictingDuplicates)
	fmt.Fprintf(c.out, "  Positions:    %d total, %d resolved (%s)\n",
		cov.Positions, cov.ResolvedPositions, percent(cov.ResolutionFrac))
	fmt.Fprintf(c.out, "  Mark prices:  %d open, %d without feed (%s covered)\n",
		cov.OpenPositions, cov.MissingPriceFeed, percent(cov.MarkPriceFrac))
	if cov.FailedFetches > 0 {
		fmt.Fprintf(c.out, "  !! %d source fetches failed — coverage is a lower bound\n", cov.FailedFetches)
	}
	return nil
}

// PrintWarehouseCoverage imprime la cobertura global del warehouse (modo
// -coverage): cuánto del histórico almacenado está resuelto, sin ejecutar
// ninguna ingesta.
func (c *Console) PrintWarehouseCoverage(cov ports.WarehouseCoverage) error {
	if c.jsonMode {
		return c.writeJSON(map[string]any{"warehouse_coverage": cov})
	}

	fmt.Fprintln(c.out, "=== WAREHOUSE COVERAGE ===")
	fmt.Fprintf(c.out, "  Trades stored:      %d\n", cov.Trades)
	fmt.Fprintf(c.out, "  Distinct markets:   %d (%d resolved, %s)\n",
		cov.Markets, cov.ResolvedMarkets, percentOf(cov.ResolvedMarkets, cov.Markets))
	fmt.Fprintf(c.out, "  Positions:          %d (%d on resolved markets, %s)\n",
		cov.Positions, cov.ResolvedPositions, percentOf(cov.ResolvedPositions, cov.Positions))
	return nil
}

func (c *Console) writeJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// --- helpers ---

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return "0x" + w[:6] + "…" + w[len(w)-4:]
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// percent formatea una fracción 0–1 como porcentaje.
func percent(frac decimal.Decimal) string {
	return frac.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func percentOf(num, den uint64) string {
	if den == 0 {
		return "0.0%"
	}
	return percent(decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))))
}
