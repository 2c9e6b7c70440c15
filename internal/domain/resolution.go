package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution es el resultado de liquidación de un mercado. Append-only: una
// vez resuelto, un mercado no se re-resuelve. Un mercado abierto simplemente
// no tiene fila de Resolution; el centinela de denominador cero nunca debe
// leerse como "resuelto con payout cero".
type Resolution struct {
	ConditionID       string // 64 hex minúsculas, sin 0x
	PayoutNumerators  []decimal.Decimal
	PayoutDenominator decimal.Decimal
	ResolvedAt        time.Time
	Source            Source
}

// IsResolved indica si el vector de payout es usable.
func (r Resolution) IsResolved() bool {
	return len(r.PayoutNumerators) > 0 && r.PayoutDenominator.IsPositive()
}

// WinningIndex devuelve el outcome index con el numerador de payout máximo.
func (r Resolution) WinningIndex() int {
	best := 0
	for i, n := range r.PayoutNumerators {
		if n.GreaterThan(r.PayoutNumerators[best]) {
			best = i
		}
	}
	return best
}

// PayoutPerShare devuelve numerador[index] / denominador en USD por share.
// Un index fuera de rango paga cero: el trade indexó un outcome que el
// vector no conoce; los tests de alineamiento existen para cazar eso.
func (r Resolution) PayoutPerShare(index int) decimal.Decimal {
	if !r.IsResolved() || index < 0 || index >= len(r.PayoutNumerators) {
		return decimal.Zero
	}
	return r.PayoutNumerators[index].Div(r.PayoutDenominator)
}

// Validate comprueba los invariantes de la resolución: condition ID canónico
// y numeradores que suman el denominador.
func (r Resolution) Validate() error {
	if !IsCanonicalConditionID(r.ConditionID) {
		return fmt.Errorf("resolution condition id %q not canonical: %w", r.ConditionID, ErrUnresolvableID)
	}
	if !r.IsResolved() {
		return nil // el centinela sin resolver es legítimo
	}
	sum := decimal.Zero
	for _, n := range r.PayoutNumerators {
		if n.IsNegative() {
			return fmt.Errorf("resolution %s has negative payout numerator", r.ConditionID)
		}
		sum = sum.Add(n)
	}
	if !sum.Equal(r.PayoutDenominator) {
		return fmt.Errorf("resolution %s payout numerators sum to %s, denominator is %s",
			r.ConditionID, sum, r.PayoutDenominator)
	}
	return nil
}
