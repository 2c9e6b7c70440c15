package ports

import (
	"context"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// TradeSource es un adapter de ingesta enchufable: una implementación por
// fuente externa, todas emitiendo la misma forma de registro crudo. Las
// fuentes nuevas se enchufan aquí en vez de criar tablas paralelas.
type TradeSource interface {
	// Name es el tag estable de la fuente, usado en logs y checkpoints.
	Name() string

	// Source es el tag de prioridad de dedup adjunto a cada registro emitido.
	Source() domain.Source

	// FetchWalletRecords devuelve todos los registros crudos de la wallet
	// posteriores al cursor dado, más el cursor desde el que retomar en la
	// siguiente run. La wallet llega en forma externa (con 0x); los adapters
	// no normalizan.
	FetchWalletRecords(ctx context.Context, wallet string, cursor string) ([]domain.RawRecord, string, error)
}

// ResolutionSource obtiene vectores de payout de liquidación.
type ResolutionSource interface {
	// FetchResolution devuelve la resolución de un condition ID canónico.
	// Un mercado sin resolver devuelve una Resolution con el centinela de
	// denominador cero y sin error.
	FetchResolution(ctx context.Context, conditionID string) (domain.Resolution, error)
}
