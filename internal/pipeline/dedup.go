package pipeline

// dedup.go: deduplicador de trades.
//
// El mismo fill puede llegar por el scanner on-chain, la API de fills del
// CLOB y el export del subgraph. Sobrevive como máximo un registro por key
// (tx, wallet, mercado, outcome). La prioridad de fuente está fijada en
// compilación: on-chain gana a CLOB, CLOB gana a subgraph. Pasar el dedup
// dos veces sobre el mismo input da el mismo output; sin exactamente esa
// propiedad, ingestas repetidas acaban multiplicando los totales.

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// amountTolerance es el margen de redondeo al comparar dos registros que
// dicen ser el mismo fill. Diferencias mayores hacen un duplicado conflictivo.
var amountTolerance = decimal.NewFromFloat(1e-6)

// DedupStats cuenta el resultado de una pasada de dedup.
type DedupStats struct {
	Input                 int
	Output                int
	DuplicatesCollapsed   int
	ConflictingDuplicates int // keys excluidas por completo
}

// Conflict registra una key cuyos candidatos discreparon materialmente.
// Excluida de la agregación y expuesta para revisión manual.
type Conflict struct {
	Key        domain.TradeKey
	Candidates []domain.Trade
}

// Dedup colapsa registros duplicados. Los candidatos que solo difieren en
// el tag de fuente colapsan a la fuente de mayor prioridad; los que difieren
// materialmente en cantidades excluyen la key entera y la marcan.
func Dedup(trades []domain.Trade) ([]domain.Trade, []Conflict, DedupStats) {
	stats := DedupStats{Input: len(trades)}

	byKey := make(map[domain.TradeKey][]domain.Trade, len(trades))
	order := make([]domain.TradeKey, 0, len(trades))
	for _, t := range trades {
		k := t.Key()
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], t)
	}

	out := make([]domain.Trade, 0, len(byKey))
	var conflicts []Conflict

	for _, k := range order {
		candidates := byKey[k]
		if len(candidates) == 1 {
			out = append(out, candidates[0])
			continue
		}

		if conflicting(candidates) {
			stats.ConflictingDuplicates++
			conflicts = append(conflicts, Conflict{Key: k, Candidates: candidates})
			slog.Warn("dedup: conflicting duplicate excluded",
				"tx", k.TxID, "wallet", k.Wallet,
				"condition_id", k.ConditionID, "outcome", k.OutcomeIndex,
				"candidates", len(candidates),
			)
			continue
		}

		stats.DuplicatesCollapsed += len(candidates) - 1
		out = append(out, pickPreferred(candidates))
	}

	stats.Output = len(out)
	return out, conflicts, stats
}

// conflicting indica si algún par de candidatos discrepa en cantidades más
// allá de la tolerancia de redondeo.
func conflicting(candidates []domain.Trade) bool {
	first := candidates[0]
	for _, c := range candidates[1:] {
		if c.ShareDelta.Sub(first.ShareDelta).Abs().GreaterThan(amountTolerance) {
			return true
		}
		if c.CashDelta.Sub(first.CashDelta).Abs().GreaterThan(amountTolerance) {
			return true
		}
	}
	return false
}

// pickPreferred devuelve el candidato de la fuente más prioritaria.
// El orden numérico de domain.Source es el orden de prioridad.
func pickPreferred(candidates []domain.Trade) domain.Trade {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Source < candidates[j].Source
	})
	return candidates[0]
}
