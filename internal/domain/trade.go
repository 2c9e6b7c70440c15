package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifica la fuente por la que llegó un registro.
// El orden numérico es la prioridad de dedup: el valor menor gana el empate.
type Source int

const (
	SourceOnChain  Source = iota // eventos on-chain (exchanges CTF)
	SourceCLOB                   // fills de la data-api
	SourceSubgraph               // subgraph / exports legacy
)

func (s Source) String() string {
	switch s {
	case SourceOnChain:
		return "onchain"
	case SourceCLOB:
		return "clob"
	case SourceSubgraph:
		return "subgraph"
	}
	return "unknown"
}

// TradeSide es la dirección de un fill.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// RawRecord es lo que emite un adapter de fuente antes de normalizar:
// identificadores tal cual los devolvió el sistema externo, cantidades ya
// parseadas.
type RawRecord struct {
	TxID         string
	Wallet       string
	ConditionID  string
	OutcomeIndex int
	Side         TradeSide
	Shares       decimal.Decimal // siempre positivo; Side lleva la dirección
	Price        decimal.Decimal // USD por share
	Timestamp    time.Time
	Source       Source
}

// Trade es un fill ejecutado con identificadores canónicos y deltas con
// signo. Inmutable una vez deduplicado; las correcciones reconstruyen las
// tablas derivadas, nunca mutan filas de trades.
//
// Convención de signos (aplicada en todas partes, documentada una vez):
// BUY suma shares y resta cash, SELL resta shares y suma cash. CashDelta es
// por tanto negativo en un BUY.
type Trade struct {
	TxID         string
	Wallet       string // 40 hex minúsculas, sin 0x
	ConditionID  string // 64 hex minúsculas, sin 0x
	OutcomeIndex int
	ShareDelta   decimal.Decimal
	CashDelta    decimal.Decimal
	Timestamp    time.Time
	Source       Source
}

// Key devuelve la identidad lógica de un fill. Dos registros con la misma
// key son el mismo trade subyacente, venga por la fuente que venga.
func (t Trade) Key() TradeKey {
	return TradeKey{
		TxID:         t.TxID,
		Wallet:       t.Wallet,
		ConditionID:  t.ConditionID,
		OutcomeIndex: t.OutcomeIndex,
	}
}

// TradeKey es la key de dedup (transacción, wallet, mercado, outcome).
type TradeKey struct {
	TxID         string
	Wallet       string
	ConditionID  string
	OutcomeIndex int
}

// TradeFromRaw convierte un registro crudo ya normalizado en un Trade,
// aplicando la convención de signos. La normalización de identificadores
// ocurre antes de esta llamada.
func TradeFromRaw(r RawRecord, wallet, conditionID string) Trade {
	shares := r.Shares
	cash := r.Price.Mul(r.Shares).Neg()
	if r.Side == SideSell {
		shares = shares.Neg()
		cash = cash.Neg()
	}
	return Trade{
		TxID:         r.TxID,
		Wallet:       wallet,
		ConditionID:  conditionID,
		OutcomeIndex: r.OutcomeIndex,
		ShareDelta:   shares,
		CashDelta:    cash,
		Timestamp:    r.Timestamp,
		Source:       r.Source,
	}
}
