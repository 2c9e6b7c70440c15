package sources

// clob.go: source de fills del CLOB.
//
// Trae los fills ejecutados de una wallet desde el data-api público,
// paginando por offset. Los identificadores pasan tal cual se reciben; la
// normalización ocurre en el pipeline, nunca aquí.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	fillsPerPage = 500
	fillsMaxPages = 40
)

// CLOBSource implementa ports.TradeSource sobre el endpoint /trades del data-api.
type CLOBSource struct {
	client *httpClient
}

// NewCLOBSource crea la source de fills. URL base vacía usa producción.
func NewCLOBSource(dataAPIBase string) *CLOBSource {
	return &CLOBSource{client: newHTTPClient(dataAPIBase, "", "")}
}

func (s *CLOBSource) Name() string          { return "clob" }
func (s *CLOBSource) Source() domain.Source { return domain.SourceCLOB }

type rawFill struct {
	TransactionHash string      `json:"transactionHash"`
	ProxyWallet     string      `json:"proxyWallet"`
	ConditionID     string      `json:"conditionId"`
	OutcomeIndex    json.Number `json:"outcomeIndex"`
	Side            string      `json:"side"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
}

// FetchWalletRecords devuelve los fills de la wallet después del cursor de
// offset dado y el cursor para reanudar en la próxima run.
func (s *CLOBSource) FetchWalletRecords(ctx context.Context, wallet string, cursor string) ([]domain.RawRecord, string, error) {
	offset := parseOffsetCursor(cursor)
	var all []domain.RawRecord

	for page := 0; page < fillsMaxPages; page++ {
		url := fmt.Sprintf("%s/trades?user=%s&limit=%d&offset=%d",
			s.client.dataAPIBase, wallet, fillsPerPage, offset)

		var resp []rawFill
		if err := s.client.get(ctx, s.client.dataAPILimiter, url, &resp); err != nil {
			return nil, cursor, fmt.Errorf("clob.FetchWalletRecords: %w", err)
		}

		if len(resp) == 0 {
			break
		}

		for _, rf := range resp {
			all = append(all, mapFill(rf))
		}
		offset += len(resp)

		slog.Debug("clob: fetched fills page",
			"wallet", wallet, "page", page, "count", len(resp), "total", len(all))

		if len(resp) < fillsPerPage {
			break
		}
	}

	return all, fmt.Sprintf("offset=%d", offset), nil
}

func mapFill(rf rawFill) domain.RawRecord {
	size := decimalFromNumber(rf.Size)
	price := decimalFromNumber(rf.Price)
	outcome, _ := strconv.Atoi(rf.OutcomeIndex.String())

	side := domain.SideBuy
	if rf.Side == "SELL" {
		side = domain.SideSell
	}

	return domain.RawRecord{
		TxID:         rf.TransactionHash,
		Wallet:       rf.ProxyWallet,
		ConditionID:  rf.ConditionID,
		OutcomeIndex: outcome,
		Side:         side,
		Shares:       size,
		Price:        price,
		Timestamp:    parseUnixTimestamp(rf.Timestamp),
		Source:       domain.SourceCLOB,
	}
}

func decimalFromNumber(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseOffsetCursor(cursor string) int {
	var offset int
	if _, err := fmt.Sscanf(cursor, "offset=%d", &offset); err != nil {
		return 0
	}
	return offset
}

// parseUnixTimestamp acepta unix en segundos o milisegundos.
func parseUnixTimestamp(n json.Number) time.Time {
	sec, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return time.Time{}
	}
	if sec > 1e12 {
		return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
	}
	return time.Unix(sec, 0).UTC()
}
