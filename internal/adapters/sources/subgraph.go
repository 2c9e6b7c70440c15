package sources

// subgraph.go: source del subgraph de orderbook.
//
// Pipeline de prioridad más baja: rellena el histórico que el data-api ya no
// sirve. Paginación por cursor sobre el id de la entidad trade.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const subgraphPageSize = 1000

// SubgraphSource implementa ports.TradeSource sobre el subgraph de orderbook.
type SubgraphSource struct {
	client *httpClient
}

func NewSubgraphSource(base string) *SubgraphSource {
	return &SubgraphSource{client: newHTTPClient("", "", base)}
}

func (s *SubgraphSource) Name() string          { return "subgraph" }
func (s *SubgraphSource) Source() domain.Source { return domain.SourceSubgraph }

const subgraphQuery = `query($user: String!, $lastID: String!, $first: Int!) {
  transactions(first: $first, orderBy: id, where: {user: $user, id_gt: $lastID}) {
    id
    transactionHash
    user
    market { condition { id } }
    outcomeIndex
    side
    tradeAmount
    outcomeTokensAmount
    timestamp
  }
}`

type subgraphResponse struct {
	Data struct {
		Transactions []subgraphTx `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type subgraphTx struct {
	ID              string `json:"id"`
	TransactionHash string `json:"transactionHash"`
	User            string `json:"user"`
	Market          struct {
		Condition struct {
			ID string `json:"id"`
		} `json:"condition"`
	} `json:"market"`
	OutcomeIndex        json.Number `json:"outcomeIndex"`
	Side                string      `json:"side"`
	TradeAmount         json.Number `json:"tradeAmount"`         // USDC, 6 decimales
	OutcomeTokensAmount json.Number `json:"outcomeTokensAmount"` // shares, 6 decimales
	Timestamp           json.Number `json:"timestamp"`
}

// FetchWalletRecords pagina las transacciones de la wallet en el subgraph
// después del cursor (último entity id visto).
func (s *SubgraphSource) FetchWalletRecords(ctx context.Context, wallet string, cursor string) ([]domain.RawRecord, string, error) {
	lastID := strings.TrimPrefix(cursor, "id=")
	var all []domain.RawRecord

	for {
		body := map[string]any{
			"query": subgraphQuery,
			"variables": map[string]any{
				"user":   strings.ToLower(wallet),
				"lastID": lastID,
				"first":  subgraphPageSize,
			},
		}

		var resp subgraphResponse
		if err := s.client.post(ctx, s.client.subgraphLimiter, s.client.subgraphBase, body, &resp); err != nil {
			return nil, cursor, fmt.Errorf("subgraph.FetchWalletRecords: %w", err)
		}
		if len(resp.Errors) > 0 {
			return nil, cursor, fmt.Errorf("subgraph.FetchWalletRecords: %s", resp.Errors[0].Message)
		}

		txs := resp.Data.Transactions
		if len(txs) == 0 {
			break
		}

		for _, tx := range txs {
			all = append(all, mapSubgraphTx(tx))
			lastID = tx.ID
		}

		if len(txs) < subgraphPageSize {
			break
		}
	}

	next := cursor
	if lastID != "" {
		next = "id=" + lastID
	}
	return all, next, nil
}

func mapSubgraphTx(tx subgraphTx) domain.RawRecord {
	// Los montos del subgraph son punto fijo con 6 decimales.
	shares := decimalFromNumber(tx.OutcomeTokensAmount).Shift(-6)
	cash := decimalFromNumber(tx.TradeAmount).Shift(-6)

	price := cash
	if !shares.IsZero() {
		price = cash.Div(shares)
	}

	side := domain.SideBuy
	if strings.EqualFold(tx.Side, "sell") {
		side = domain.SideSell
	}

	outcome, _ := tx.OutcomeIndex.Int64()

	return domain.RawRecord{
		TxID:         tx.TransactionHash,
		Wallet:       tx.User,
		ConditionID:  tx.Market.Condition.ID,
		OutcomeIndex: int(outcome),
		Side:         side,
		Shares:       shares,
		Price:        price,
		Timestamp:    parseUnixTimestamp(tx.Timestamp),
		Source:       domain.SourceSubgraph,
	}
}
