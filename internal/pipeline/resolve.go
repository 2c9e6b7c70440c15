package pipeline

// resolve.go: join de posiciones con resoluciones.
//
// Une posiciones a resoluciones por el condition ID canónico. Una resolución
// con ID no canónico se excluye del join en vez de coercionarse; un
// denominador de payout cero significa sin resolver, que es un estado, no un
// error.

import (
	"log/slog"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// ResolveStats cuenta el resultado del join.
type ResolveStats struct {
	Positions           int
	Resolved            int
	Unresolved          int
	ExcludedResolutions int // filas de resolución que fallaron el check canónico
}

// Resolve anota cada posición con el estado de resolución de su mercado.
// resolutions va indexado por condition ID canónico; las filas que fallan la
// validación se excluyen y se cuentan.
func Resolve(positions []domain.Position, resolutions map[string]domain.Resolution) ([]domain.PositionPnL, ResolveStats) {
	stats := ResolveStats{Positions: len(positions)}

	valid := make(map[string]domain.Resolution, len(resolutions))
	for id, r := range resolutions {
		if err := r.Validate(); err != nil {
			stats.ExcludedResolutions++
			slog.Warn("resolve: excluding invalid resolution", "condition_id", id, "err", err)
			continue
		}
		valid[id] = r
	}

	out := make([]domain.PositionPnL, 0, len(positions))
	for _, p := range positions {
		ann := domain.PositionPnL{Position: p}

		if r, ok := valid[p.ConditionID]; ok && r.IsResolved() {
			res := r
			ann.Resolved = true
			ann.Payout = &res
			ann.WinningIndex = r.WinningIndex()
			stats.Resolved++
		} else {
			stats.Unresolved++
		}

		out = append(out, ann)
	}

	return out, stats
}
