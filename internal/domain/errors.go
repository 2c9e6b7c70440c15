package domain

import "errors"

// Taxonomía de errores compartida entre etapas. ErrUnresolvableID y
// ErrPlaceholderID viven en ident.go junto a la normalización que protegen.
var (
	// ErrConflictingDuplicate: dos registros comparten key de dedup pero
	// discrepan materialmente en cantidades. Se excluyen ambos y se marcan
	// para revisión; elegir uno en silencio es exactamente cómo se acaba
	// multiplicando el P&L.
	ErrConflictingDuplicate = errors.New("conflicting duplicate trade")

	// ErrExternalFetch: una llamada a fuente falló tras agotar reintentos.
	// Se registra para la key afectada; el resto del batch continúa.
	ErrExternalFetch = errors.New("external fetch failed")
)
