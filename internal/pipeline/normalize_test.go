package pipeline_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
)

const (
	testWallet    = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	testWalletHex = "2791bca1f2de4661ed88a30c99a7a9449aa84174"
)

func testConditionID(n int) string {
	return fmt.Sprintf("%064x", n)
}

func rawRecord(tx string, conditionID string, side domain.TradeSide, shares, price float64) domain.RawRecord {
	return domain.RawRecord{
		TxID:        tx,
		Wallet:      testWallet,
		ConditionID: conditionID,
		Side:        side,
		Shares:      decimal.NewFromFloat(shares),
		Price:       decimal.NewFromFloat(price),
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:      domain.SourceCLOB,
	}
}

func TestNormalize_CanonicalizesAndSigns(t *testing.T) {
	records := []domain.RawRecord{
		rawRecord("tx1", "0x"+strings.ToUpper(testConditionID(1)), domain.SideBuy, 100, 0.6),
		rawRecord("tx2", testConditionID(1), domain.SideSell, 40, 0.7),
	}

	trades, stats := pipeline.Normalize(records)
	require.Len(t, trades, 2)
	assert.Equal(t, 2, stats.Usable)
	assert.Equal(t, 0, stats.Excluded())

	buy := trades[0]
	assert.Equal(t, testWalletHex, buy.Wallet)
	assert.Equal(t, testConditionID(1), buy.ConditionID)
	assert.True(t, buy.ShareDelta.Equal(decimal.NewFromInt(100)))
	// BUY: el cash sale
	assert.True(t, buy.CashDelta.Equal(decimal.NewFromFloat(-60)))

	sell := trades[1]
	assert.True(t, sell.ShareDelta.Equal(decimal.NewFromInt(-40)))
	assert.True(t, sell.CashDelta.Equal(decimal.NewFromFloat(28)))
}

// Escenario de cobertura: 700 IDs canónicos y 300 placeholders deben
// reportar exactamente 700 usables y 300 excluidos, nunca 1000 "exitosos".
func TestNormalize_CoverageCounts(t *testing.T) {
	var records []domain.RawRecord
	for i := 0; i < 700; i++ {
		records = append(records, rawRecord(fmt.Sprintf("tx%d", i), testConditionID(i), domain.SideBuy, 1, 0.5))
	}
	for i := 0; i < 300; i++ {
		// Token IDs ERC-1155 crudos: hex, pero cortos de los 64 chars canónicos
		records = append(records, rawRecord(fmt.Sprintf("txp%d", i), fmt.Sprintf("%x", 1000+i), domain.SideBuy, 1, 0.5))
	}

	trades, stats := pipeline.Normalize(records)
	assert.Len(t, trades, 700)
	assert.Equal(t, 1000, stats.Input)
	assert.Equal(t, 700, stats.Usable)
	assert.Equal(t, 300, stats.PlaceholderID)
	assert.Equal(t, 0, stats.UnresolvableID)
}

func TestNormalize_MalformedIDsCountedSeparately(t *testing.T) {
	records := []domain.RawRecord{
		rawRecord("tx1", "not-hex", domain.SideBuy, 1, 0.5),
		rawRecord("tx2", testConditionID(1)+"ff", domain.SideBuy, 1, 0.5), // demasiado largo
		{TxID: "tx3", Wallet: "0xbad", ConditionID: testConditionID(1),
			Side: domain.SideBuy, Shares: decimal.NewFromInt(1), Price: decimal.NewFromFloat(0.5)},
	}

	trades, stats := pipeline.Normalize(records)
	assert.Empty(t, trades)
	assert.Equal(t, 3, stats.UnresolvableID)
	assert.Equal(t, 0, stats.Usable)
}
