// Package reference obtiene los totales de P&L publicados externamente por
// el data-api de Polymarket. Solo para validación: estos números validan
// releases, nunca alimentan el cálculo.
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultDataAPIBase = "https://data-api.polymarket.com"

// DataAPIReference implementa ports.ReferenceProvider.
type DataAPIReference struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

func NewDataAPIReference(base string) *DataAPIReference {
	if base == "" {
		base = defaultDataAPIBase
	}
	return &DataAPIReference{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(10, 5),
	}
}

type valueResponse struct {
	User  string      `json:"user"`
	Value json.Number `json:"value"`
}

// ReferenceTotalPnL obtiene el P&L total reportado por la plataforma para una wallet.
func (r *DataAPIReference) ReferenceTotalPnL(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	url := fmt.Sprintf("%s/value?user=0x%s", r.base, wallet)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reference.ReferenceTotalPnL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("reference.ReferenceTotalPnL: status %d", resp.StatusCode)
	}

	var body []valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("reference.ReferenceTotalPnL: decode: %w", err)
	}
	if len(body) == 0 {
		return decimal.Zero, fmt.Errorf("reference.ReferenceTotalPnL: no value for wallet %s", wallet)
	}

	value, err := decimal.NewFromString(body[0].Value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("reference.ReferenceTotalPnL: parse value: %w", err)
	}
	return value, nil
}
