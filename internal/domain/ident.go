package domain

// ident.go: normalización de identificadores canónicos.
//
// Todas las fuentes y todos los joins del warehouse usan la misma forma
// canónica: hex en minúsculas, sin prefijo "0x", longitud fija (64 chars
// para condition IDs, 40 para wallets). La normalización vive aquí y solo
// aquí; los adapters nunca normalizan por su cuenta.

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ConditionIDHexLen es la longitud canónica de un condition ID.
	ConditionIDHexLen = 64
	// WalletHexLen es la longitud canónica de una dirección de wallet.
	WalletHexLen = 40
)

var (
	// ErrUnresolvableID marca un identificador que no se puede normalizar.
	// Los registros que lo llevan se excluyen y se cuentan, nunca se
	// rellenan con un default.
	ErrUnresolvableID = errors.New("unresolvable identifier")

	// ErrPlaceholderID marca un identificador hex bien formado pero
	// demasiado corto para ser condition ID (token IDs ERC-1155 crudos y
	// similares). Se excluyen de los joins a nivel mercado.
	ErrPlaceholderID = errors.New("placeholder identifier")
)

// NormalizeConditionID devuelve la forma canónica de 64 chars hex de un
// identificador de mercado/condición. Hex válido pero corto produce
// ErrPlaceholderID; cualquier otro fallo de formato, ErrUnresolvableID.
func NormalizeConditionID(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")

	if s == "" {
		return "", fmt.Errorf("empty condition id: %w", ErrUnresolvableID)
	}
	if !isHex(s) {
		return "", fmt.Errorf("condition id %q is not hex: %w", raw, ErrUnresolvableID)
	}
	if len(s) < ConditionIDHexLen {
		return "", fmt.Errorf("condition id %q has %d hex chars, want %d: %w",
			raw, len(s), ConditionIDHexLen, ErrPlaceholderID)
	}
	if len(s) > ConditionIDHexLen {
		return "", fmt.Errorf("condition id %q has %d hex chars, want %d: %w",
			raw, len(s), ConditionIDHexLen, ErrUnresolvableID)
	}
	return s, nil
}

// NormalizeWallet devuelve la forma canónica de 40 chars hex de una wallet.
func NormalizeWallet(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")

	if len(s) != WalletHexLen || !isHex(s) {
		return "", fmt.Errorf("wallet %q is not a %d-hex-char address: %w",
			raw, WalletHexLen, ErrUnresolvableID)
	}
	return s, nil
}

// IsCanonicalConditionID indica si s ya está en forma canónica. Se usa en el
// lado resolución de los joins, donde una key no canónica excluye la fila en
// vez de coercionarla.
func IsCanonicalConditionID(s string) bool {
	return len(s) == ConditionIDHexLen && isHex(s)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return len(s) > 0
}
