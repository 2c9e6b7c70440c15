package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

const (
	defaultDataAPIBase  = "https://data-api.polymarket.com"
	defaultCLOBBase     = "https://clob.polymarket.com"
	defaultSubgraphBase = "https://api.goldsky.com/api/public/project_cl6mb8i9h0003e201j6li0diw/subgraphs/polymarket-orderbook-resync/prod/gn"

	// Rate limits al 60% de los límites documentados de la API.
	dataAPIRatePerSec  = 30
	clobRatePerSec     = 50
	subgraphRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// httpClient es la capa HTTP compartida por todas las sources REST/GraphQL:
// rate limiting por familia de endpoint, reintentos con backoff exponencial
// acotado ante fallos transitorios y timeout duro por request.
type httpClient struct {
	http            *http.Client
	dataAPIBase     string
	clobBase        string
	subgraphBase    string
	dataAPILimiter  *rate.Limiter
	clobLimiter     *rate.Limiter
	subgraphLimiter *rate.Limiter
}

func newHTTPClient(dataAPIBase, clobBase, subgraphBase string) *httpClient {
	if dataAPIBase == "" {
		dataAPIBase = defaultDataAPIBase
	}
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if subgraphBase == "" {
		subgraphBase = defaultSubgraphBase
	}
	return &httpClient{
		http:            &http.Client{Timeout: 15 * time.Second},
		dataAPIBase:     dataAPIBase,
		clobBase:        clobBase,
		subgraphBase:    subgraphBase,
		dataAPILimiter:  rate.NewLimiter(dataAPIRatePerSec, 10),
		clobLimiter:     rate.NewLimiter(clobRatePerSec, 10),
		subgraphLimiter: rate.NewLimiter(subgraphRatePerSec, 2),
	}
}

// get hace un GET con rate limiting y reintentos.
func (c *httpClient) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y reintentos.
func (c *httpClient) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta fn con backoff exponencial. Los 429 y 5xx se
// reintentan; el resto de 4xx falla de inmediato. Reintentos agotados salen
// como domain.ErrExternalFetch para que el caller cuente el fallo y siga.
func (c *httpClient) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %v: %w", maxRetries, err, domain.ErrExternalFetch)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries: %w", resp.StatusCode, maxRetries, domain.ErrExternalFetch)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries: %w", maxRetries, domain.ErrExternalFetch)
}

// sleep espera con backoff exponencial respetando el context.
func (c *httpClient) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
