package pipeline_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
)

func TestAggregate_NetsSharesAndCostBasis(t *testing.T) {
	// Compra 100 @ 0.60, compra 50 @ 0.70, venta 30 @ 0.80
	in := []domain.Trade{
		trade("tx1", domain.SourceCLOB, 100, -60),
		trade("tx2", domain.SourceCLOB, 50, -35),
		trade("tx3", domain.SourceCLOB, -30, 24),
	}

	positions := pipeline.Aggregate(in)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.True(t, p.NetShares.Equal(decimal.NewFromInt(120)), "net shares %s", p.NetShares)
	// Cost basis = salida neta de cash = 60 + 35 - 24 = 71
	assert.True(t, p.CostBasis.Equal(decimal.NewFromInt(71)), "cost basis %s", p.CostBasis)
	assert.Equal(t, 3, p.TradeCount)
}

// Conservación: shares netos y cost basis igualan las sumas con signo
// exactamente, sobre muchos trades, sin deriva de coma flotante.
func TestAggregate_Conservation(t *testing.T) {
	var in []domain.Trade
	expectedShares := decimal.Zero
	expectedCash := decimal.Zero
	for i := 0; i < 10_000; i++ {
		shares := 0.1 + float64(i%7)*0.3
		cash := -shares * 0.33
		if i%3 == 0 {
			shares, cash = -shares, -cash
		}
		tr := trade(fmt.Sprintf("tx%d", i), domain.SourceCLOB, shares, cash)
		in = append(in, tr)
		expectedShares = expectedShares.Add(tr.ShareDelta)
		expectedCash = expectedCash.Add(tr.CashDelta)
	}

	positions := pipeline.Aggregate(in)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].NetShares.Equal(expectedShares))
	assert.True(t, positions[0].CostBasis.Equal(expectedCash.Neg()))
}

// Las posiciones que netean a cero shares están cerradas, no desaparecidas.
// Descartarlas infra-reporta el P&L realizado.
func TestAggregate_RetainsClosedPositions(t *testing.T) {
	in := []domain.Trade{
		trade("tx1", domain.SourceCLOB, 100, -60),
		trade("tx2", domain.SourceCLOB, -100, 80),
	}

	positions := pipeline.Aggregate(in)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].IsClosed())
	assert.True(t, positions[0].NetShares.IsZero())
	// Salida neta 60 - 80 = -20: la wallet sacó $20 más de los que metió
	assert.True(t, positions[0].CostBasis.Equal(decimal.NewFromInt(-20)))
}

func TestAggregate_SeparatesOutcomes(t *testing.T) {
	a := trade("tx1", domain.SourceCLOB, 10, -5)
	b := trade("tx2", domain.SourceCLOB, 20, -9)
	b.OutcomeIndex = 1
	c := trade("tx3", domain.SourceCLOB, 5, -2)
	c.ConditionID = testConditionID(2)

	positions := pipeline.Aggregate([]domain.Trade{a, b, c})
	assert.Len(t, positions, 3)
}
