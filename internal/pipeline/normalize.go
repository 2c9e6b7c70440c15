package pipeline

// normalize.go: normalizador de ingesta.
//
// Los registros crudos de todas las fuentes pasan por aquí antes de que nada
// aguas abajo los vea. La normalización de identificadores se delega al
// paquete domain; las exclusiones se cuentan, nunca se descartan en silencio.

import (
	"errors"
	"log/slog"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// NormalizeStats cuenta qué pasó con un batch de registros crudos. Los
// contadores de exclusión son parte del contrato: el caller tiene que poder
// ver cuántos registros eran inusables antes de fiarse de ningún número.
type NormalizeStats struct {
	Input          int
	Usable         int
	UnresolvableID int // identificadores malformados
	PlaceholderID  int // bien formados pero sub-canónicos (token IDs ERC-1155 crudos)
}

// Excluded devuelve el total de registros que no pasaron.
func (s NormalizeStats) Excluded() int {
	return s.UnresolvableID + s.PlaceholderID
}

// Normalize convierte registros crudos en trades canónicos. Los registros
// cuya wallet o condition ID falla la normalización se excluyen y se cuentan
// por clase.
func Normalize(records []domain.RawRecord) ([]domain.Trade, NormalizeStats) {
	stats := NormalizeStats{Input: len(records)}
	trades := make([]domain.Trade, 0, len(records))

	for _, r := range records {
		wallet, err := domain.NormalizeWallet(r.Wallet)
		if err != nil {
			stats.UnresolvableID++
			slog.Debug("normalize: excluding record with bad wallet",
				"tx", r.TxID, "wallet", r.Wallet, "source", r.Source.String())
			continue
		}

		conditionID, err := domain.NormalizeConditionID(r.ConditionID)
		if err != nil {
			if errors.Is(err, domain.ErrPlaceholderID) {
				stats.PlaceholderID++
			} else {
				stats.UnresolvableID++
			}
			slog.Debug("normalize: excluding record with bad condition id",
				"tx", r.TxID, "condition_id", r.ConditionID, "source", r.Source.String())
			continue
		}

		trades = append(trades, domain.TradeFromRaw(r, wallet, conditionID))
		stats.Usable++
	}

	if stats.Excluded() > 0 {
		slog.Info("normalize: excluded records",
			"input", stats.Input,
			"usable", stats.Usable,
			"unresolvable_id", stats.UnresolvableID,
			"placeholder_id", stats.PlaceholderID,
		)
	}

	return trades, stats
}
