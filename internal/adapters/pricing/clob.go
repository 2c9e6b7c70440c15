// Package pricing provee mark prices para posiciones abiertas desde el
// endpoint midpoint del CLOB, con fallback al último precio negociado.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase = "https://clob.polymarket.com"

	priceRatePerSec = 30
	priceCacheTTL   = 5 * time.Minute
)

// CLOBPrices implementa ports.MarkPriceProvider. Los mercados sin precio se
// reportan como not-ok, no como cero; los marks ausentes deben quedar
// visibles.
type CLOBPrices struct {
	http     *http.Client
	base     string
	limiter  *rate.Limiter
	resolver TokenResolver

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// TokenResolver mapea (condition, outcome) al token id del CLOB que indexa
// los endpoints de precio. Se construye con metadata de mercado al cablear.
type TokenResolver func(conditionID string, outcomeIndex int) (tokenID string, ok bool)

type cachedPrice struct {
	price decimal.Decimal
	at    time.Time
}

func NewCLOBPrices(base string, resolver TokenResolver) *CLOBPrices {
	if base == "" {
		base = defaultCLOBBase
	}
	return &CLOBPrices{
		http:     &http.Client{Timeout: 10 * time.Second},
		base:     base,
		limiter:  rate.NewLimiter(priceRatePerSec, 10),
		resolver: resolver,
		cache:    make(map[string]cachedPrice),
	}
}

// MarkPrice devuelve el mark actual de un outcome token. ok=false significa
// que ningún feed cubre el mercado; el caller registra MISSING_PRICE_FEED.
func (p *CLOBPrices) MarkPrice(ctx context.Context, conditionID string, outcomeIndex int) (decimal.Decimal, bool, error) {
	tokenID, ok := p.resolver(conditionID, outcomeIndex)
	if !ok {
		return decimal.Zero, false, nil
	}

	key := fmt.Sprintf("%s:%d", conditionID, outcomeIndex)
	p.mu.Lock()
	if c, hit := p.cache[key]; hit && time.Since(c.at) < priceCacheTTL {
		p.mu.Unlock()
		return c.price, true, nil
	}
	p.mu.Unlock()

	price, found, err := p.fetchPrice(ctx, tokenID)
	if err != nil || !found {
		return decimal.Zero, false, err
	}

	p.mu.Lock()
	p.cache[key] = cachedPrice{price: price, at: time.Now()}
	p.mu.Unlock()
	return price, true, nil
}

// fetchPrice intenta primero el midpoint y luego el último precio negociado.
func (p *CLOBPrices) fetchPrice(ctx context.Context, tokenID string) (decimal.Decimal, bool, error) {
	if price, ok := p.getPrice(ctx, fmt.Sprintf("%s/midpoint?token_id=%s", p.base, tokenID), "mid"); ok {
		return price, true, nil
	}
	if price, ok := p.getPrice(ctx, fmt.Sprintf("%s/last-trade-price?token_id=%s", p.base, tokenID), "price"); ok {
		return price, true, nil
	}
	return decimal.Zero, false, nil
}

func (p *CLOBPrices) getPrice(ctx context.Context, url, field string) (decimal.Decimal, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return decimal.Zero, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		slog.Debug("pricing: fetch failed", "url", url, "err", err)
		return decimal.Zero, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false
	}

	var body map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, false
	}

	raw, ok := body[field]
	if !ok {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}
