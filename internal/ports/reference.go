package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReferenceProvider obtiene el P&L total publicado externamente para una
// wallet. Solo para validación: los valores de referencia nunca
// retroalimentan el cálculo.
type ReferenceProvider interface {
	ReferenceTotalPnL(ctx context.Context, wallet string) (decimal.Decimal, error)
}
