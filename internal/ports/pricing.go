package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarkPriceProvider aporta el mark price actual de posiciones abiertas.
// Un mercado sin precio disponible devuelve ok=false; el caller lo reporta
// como posición sin feed, nunca lo trata como precio cero.
type MarkPriceProvider interface {
	MarkPrice(ctx context.Context, conditionID string, outcomeIndex int) (price decimal.Decimal, ok bool, err error)
}
