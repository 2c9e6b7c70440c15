package pipeline

// pnl.go: calculadora de P&L.
//
// El P&L realizado aplica a mercados resueltos y a round-trips cerrados; el
// no realizado, a posiciones abiertas con mark price disponible. Un mark
// ausente deja Unrealized a nil: cero infra-reportaría en silencio el
// número real, que es justo el modo de fallo que este pipeline existe para
// evitar.

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// PnLStats cuenta qué pudo y qué no pudo calcular la calculadora.
type PnLStats struct {
	Positions        int
	Resolved         int
	Closed           int
	Open             int
	MissingPriceFeed int
	PriceFetchErrors int
}

// ComputePnL rellena los componentes Realized/Unrealized de cada posición
// anotada y los acumula por wallet. prices puede ser nil; en ese caso toda
// posición abierta cuenta como sin feed.
func ComputePnL(ctx context.Context, positions []domain.PositionPnL, prices ports.MarkPriceProvider) ([]domain.PositionPnL, []domain.WalletPnLSummary, PnLStats) {
	stats := PnLStats{Positions: len(positions)}
	byWallet := make(map[string]*domain.WalletPnLSummary)
	order := make([]string, 0)

	out := make([]domain.PositionPnL, 0, len(positions))
	for _, p := range positions {
		sum, ok := byWallet[p.Wallet]
		if !ok {
			sum = &domain.WalletPnLSummary{Wallet: p.Wallet}
			byWallet[p.Wallet] = sum
			order = append(order, p.Wallet)
		}

		switch {
		case p.Resolved:
			p.State = domain.PositionResolved
			realized := realizedPnL(p.Position, *p.Payout)
			p.Realized = &realized
			sum.Realized = sum.Realized.Add(realized)
			sum.ResolvedPositions++
			stats.Resolved++

		case p.IsClosed():
			// Cerrada por trades compensados: el cash flow de trading queda
			// realizado resuelva o no el mercado.
			p.State = domain.PositionClosed
			realized := p.CostBasis.Neg()
			p.Realized = &realized
			sum.Realized = sum.Realized.Add(realized)
			sum.ClosedPositions++
			stats.Closed++

		default:
			p.State = domain.PositionOpen
			sum.OpenPositions++
			stats.Open++

			mark, found := lookupMark(ctx, prices, p, &stats)
			if found {
				p.MarkPrice = &mark
				unrealized := p.NetShares.Mul(mark).Sub(p.CostBasis)
				p.Unrealized = &unrealized
				sum.Unrealized = sum.Unrealized.Add(unrealized)
			} else {
				sum.MissingPriceFeed++
				stats.MissingPriceFeed++
			}
		}

		out = append(out, p)
	}

	summaries := make([]domain.WalletPnLSummary, 0, len(byWallet))
	for _, w := range order {
		s := byWallet[w]
		s.Total = s.Realized.Add(s.Unrealized)
		summaries = append(summaries, *s)
	}

	return out, summaries, stats
}

// realizedPnL calcula el P&L de liquidación de una posición resuelta:
// net_shares × payout_per_share − cost_basis. La fórmula vale para las
// cuatro combinaciones long/short × gana/pierde; ver los tests.
func realizedPnL(p domain.Position, r domain.Resolution) decimal.Decimal {
	payout := r.PayoutPerShare(p.OutcomeIndex)
	return p.NetShares.Mul(payout).Sub(p.CostBasis)
}

// lookupMark obtiene un mark price, tratando errores de fetch como feed
// ausente para que un mercado caprichoso no aborte el batch.
func lookupMark(ctx context.Context, prices ports.MarkPriceProvider, p domain.PositionPnL, stats *PnLStats) (decimal.Decimal, bool) {
	if prices == nil {
		return decimal.Zero, false
	}
	mark, ok, err := prices.MarkPrice(ctx, p.ConditionID, p.OutcomeIndex)
	if err != nil {
		stats.PriceFetchErrors++
		slog.Warn("pnl: mark price fetch failed",
			"condition_id", p.ConditionID, "outcome", p.OutcomeIndex, "err", err)
		return decimal.Zero, false
	}
	return mark, ok
}
