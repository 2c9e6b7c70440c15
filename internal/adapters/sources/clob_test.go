package sources_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/sources"
	"github.com/alejandrodnm/polypnl/internal/domain"
)

const fillsFixture = `[
	{
		"transactionHash": "0xAAA111",
		"proxyWallet": "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		"conditionId": "0x` + "bbccddee00112233445566778899aabbccddee00112233445566778899aabbcc" + `",
		"outcomeIndex": 1,
		"side": "BUY",
		"size": "100",
		"price": "0.6",
		"timestamp": 1717243200
	},
	{
		"transactionHash": "0xAAA222",
		"proxyWallet": "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		"conditionId": "0x` + "bbccddee00112233445566778899aabbccddee00112233445566778899aabbcc" + `",
		"outcomeIndex": 1,
		"side": "SELL",
		"size": "40",
		"price": "0.7",
		"timestamp": 1717329600
	}
]`

func TestCLOBSource_FetchWalletRecords(t *testing.T) {
	var requestedOffsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		requestedOffsets = append(requestedOffsets, r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "0" {
			fmt.Fprint(w, fillsFixture)
			return
		}
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	src := sources.NewCLOBSource(srv.URL)
	records, cursor, err := src.FetchWalletRecords(context.Background(), "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "offset=2", cursor)
	assert.Equal(t, []string{"0"}, requestedOffsets)

	buy := records[0]
	assert.Equal(t, "0xAAA111", buy.TxID)
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, 1, buy.OutcomeIndex)
	assert.True(t, buy.Shares.Equal(decimal.NewFromInt(100)))
	assert.True(t, buy.Price.Equal(decimal.NewFromFloat(0.6)))
	assert.Equal(t, domain.SourceCLOB, buy.Source)
	assert.Equal(t, int64(1717243200), buy.Timestamp.Unix())

	// Los identificadores pasan crudos: canonicalizar es trabajo del pipeline.
	assert.True(t, strings.HasPrefix(buy.ConditionID, "0x"))
}

func TestCLOBSource_ResumesFromCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "57", r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	src := sources.NewCLOBSource(srv.URL)
	records, cursor, err := src.FetchWalletRecords(context.Background(), "0xwallet", "offset=57")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "offset=57", cursor)
}

func TestCLOBSource_ServerErrorKeepsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := sources.NewCLOBSource(srv.URL)
	_, cursor, err := src.FetchWalletRecords(context.Background(), "0xwallet", "offset=10")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalFetch)
	assert.Equal(t, "offset=10", cursor)
}

func TestRESTResolutionSource_WinnerAndUnresolved(t *testing.T) {
	cond := strings.Repeat("ab", 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/0x"+cond, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"condition_id": "0x%s",
			"closed": true,
			"end_date_iso": "2025-07-01T00:00:00Z",
			"tokens": [
				{"token_id": "t0", "outcome": "Yes", "price": 0, "winner": false},
				{"token_id": "t1", "outcome": "No", "price": 1, "winner": true}
			]
		}`, cond)
	}))
	defer srv.Close()

	src := sources.NewRESTResolutionSource(srv.URL)
	res, err := src.FetchResolution(context.Background(), cond)
	require.NoError(t, err)
	require.True(t, res.IsResolved())
	assert.Equal(t, 1, res.WinningIndex())
	assert.True(t, res.PayoutPerShare(1).Equal(decimal.NewFromInt(1)))
	assert.True(t, res.PayoutPerShare(0).IsZero())
	require.NoError(t, res.Validate())
}

func TestRESTResolutionSource_OpenMarketIsUnresolved(t *testing.T) {
	cond := strings.Repeat("cd", 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"condition_id": "0x%s",
			"closed": false,
			"tokens": [
				{"token_id": "t0", "outcome": "Yes", "price": 0.4, "winner": false},
				{"token_id": "t1", "outcome": "No", "price": 0.6, "winner": false}
			]
		}`, cond)
	}))
	defer srv.Close()

	src := sources.NewRESTResolutionSource(srv.URL)
	res, err := src.FetchResolution(context.Background(), cond)
	require.NoError(t, err)
	assert.False(t, res.IsResolved())
}
