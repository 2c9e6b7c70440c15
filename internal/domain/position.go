package domain

import "github.com/shopspring/decimal"

// SharesEpsilon es el umbral bajo el cual un balance neto de shares cuenta
// como cero. Los round-trips completos caen dentro pero se retienen:
// descartarlos en silencio infra-reporta el P&L realizado.
var SharesEpsilon = decimal.NewFromFloat(1e-6)

// Position es la tenencia neta agregada de una wallet en un outcome de un
// mercado. Derivada por completo del conjunto de Trades; se recalcula, nunca
// se parchea.
//
// CostBasis es la salida neta de cash: positivo significa que la wallet ha
// pagado más de lo que ha recibido por esta posición hasta ahora.
type Position struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
	NetShares    decimal.Decimal
	CostBasis    decimal.Decimal
	TradeCount   int
}

// IsClosed indica si la posición quedó cerrada por trades compensados
// (shares netos dentro del epsilon de cero).
func (p Position) IsClosed() bool {
	return p.NetShares.Abs().LessThan(SharesEpsilon)
}

// PositionState clasifica una posición a efectos de P&L.
type PositionState string

const (
	// PositionResolved: el mercado tiene vector de payout; aplica P&L realizado.
	PositionResolved PositionState = "RESOLVED"
	// PositionClosed: shares netos a cero; el cash flow de trading queda
	// realizado aunque el mercado nunca resuelva.
	PositionClosed PositionState = "CLOSED"
	// PositionOpen: mercado sin resolver con tenencia viva; solo aplica P&L
	// no realizado, y solo cuando existe mark price.
	PositionOpen PositionState = "OPEN"
)
