package pipeline

// aggregate.go: agregador de posiciones.
//
// Netea el conjunto deduplicado de trades en una Position por
// (wallet, mercado, outcome). Toda la aritmética se queda en decimal; el
// redondeo a precisión de display ocurre en los reporters, nunca aquí. Las
// posiciones que netean a cero shares se conservan: un round-trip cerrado
// sigue llevando P&L realizado, y descartarlas infra-reporta el total.

import (
	"sort"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

type positionKey struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
}

// Aggregate netea deltas con signo de shares y cash por
// (wallet, mercado, outcome). CostBasis es salida neta de cash, así que
// niega el delta acumulado: una wallet que gastó $60 netos tiene CostBasis +60.
func Aggregate(trades []domain.Trade) []domain.Position {
	acc := make(map[positionKey]*domain.Position, len(trades))
	order := make([]positionKey, 0, len(trades))

	for _, t := range trades {
		k := positionKey{t.Wallet, t.ConditionID, t.OutcomeIndex}
		p, ok := acc[k]
		if !ok {
			p = &domain.Position{
				Wallet:       t.Wallet,
				ConditionID:  t.ConditionID,
				OutcomeIndex: t.OutcomeIndex,
			}
			acc[k] = p
			order = append(order, k)
		}
		p.NetShares = p.NetShares.Add(t.ShareDelta)
		p.CostBasis = p.CostBasis.Sub(t.CashDelta)
		p.TradeCount++
	}

	positions := make([]domain.Position, 0, len(acc))
	for _, k := range order {
		positions = append(positions, *acc[k])
	}

	// Orden estable: las tablas reconstruidas quedan comparables entre runs
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.Wallet != b.Wallet {
			return a.Wallet < b.Wallet
		}
		if a.ConditionID != b.ConditionID {
			return a.ConditionID < b.ConditionID
		}
		return a.OutcomeIndex < b.OutcomeIndex
	})

	return positions
}
