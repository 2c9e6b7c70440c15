package pipeline_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
)

func trade(tx string, source domain.Source, shares, cash float64) domain.Trade {
	return domain.Trade{
		TxID:         tx,
		Wallet:       testWalletHex,
		ConditionID:  testConditionID(1),
		OutcomeIndex: 0,
		ShareDelta:   decimal.NewFromFloat(shares),
		CashDelta:    decimal.NewFromFloat(cash),
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:       source,
	}
}

func TestDedup_CollapsesAcrossSources(t *testing.T) {
	in := []domain.Trade{
		trade("tx1", domain.SourceCLOB, 100, -60),
		trade("tx1", domain.SourceOnChain, 100, -60),
		trade("tx1", domain.SourceSubgraph, 100, -60),
		trade("tx2", domain.SourceCLOB, 50, -30),
	}

	out, conflicts, stats := pipeline.Dedup(in)
	require.Len(t, out, 2)
	assert.Empty(t, conflicts)
	assert.Equal(t, 2, stats.DuplicatesCollapsed)

	// Prioridad fija: on-chain gana el empate
	assert.Equal(t, domain.SourceOnChain, out[0].Source)
}

// Pasar el dedup dos veces sobre input ya deduplicado no debe cambiar
// nada; sin esta propiedad, una ingesta repetida multiplica los conteos.
func TestDedup_Idempotent(t *testing.T) {
	in := []domain.Trade{
		trade("tx1", domain.SourceCLOB, 100, -60),
		trade("tx1", domain.SourceOnChain, 100, -60),
		trade("tx2", domain.SourceSubgraph, 25, -10),
	}

	once, _, statsOnce := pipeline.Dedup(in)
	twice, _, statsTwice := pipeline.Dedup(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, statsOnce.Output, statsTwice.Output)
	assert.Equal(t, 0, statsTwice.DuplicatesCollapsed)

	// Los agregados tampoco deben crecer
	sumOnce := decimal.Zero
	for _, tr := range once {
		sumOnce = sumOnce.Add(tr.ShareDelta)
	}
	sumTwice := decimal.Zero
	for _, tr := range twice {
		sumTwice = sumTwice.Add(tr.ShareDelta)
	}
	assert.True(t, sumOnce.Equal(sumTwice))
}

func TestDedup_ConflictingAmountsExcluded(t *testing.T) {
	in := []domain.Trade{
		trade("tx1", domain.SourceCLOB, 100, -60),
		trade("tx1", domain.SourceOnChain, 150, -90), // materialmente distinto
		trade("tx2", domain.SourceCLOB, 10, -5),
	}

	out, conflicts, stats := pipeline.Dedup(in)
	require.Len(t, out, 1)
	assert.Equal(t, "tx2", out[0].TxID)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "tx1", conflicts[0].Key.TxID)
	assert.Len(t, conflicts[0].Candidates, 2)
	assert.Equal(t, 1, stats.ConflictingDuplicates)
}

func TestDedup_RoundingToleranceIsNotAConflict(t *testing.T) {
	a := trade("tx1", domain.SourceCLOB, 100, -60)
	b := trade("tx1", domain.SourceOnChain, 100, -60)
	b.ShareDelta = b.ShareDelta.Add(decimal.NewFromFloat(1e-9))

	out, conflicts, _ := pipeline.Dedup([]domain.Trade{a, b})
	assert.Len(t, out, 1)
	assert.Empty(t, conflicts)
}
