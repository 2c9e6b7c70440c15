package domain

// outcome.go: mapeo label de outcome ↔ index.
//
// Los trades indexan con el mismo orden 0-based que el vector de payout de
// la resolución. El mapeo se define una sola vez aquí; ninguna etapa aplica
// su propio offset. Los mercados binarios siguen la convención CTF:
// index 0 = YES, index 1 = NO.

import (
	"fmt"
	"strings"
)

// BinaryOutcomeCount es el número de outcomes de un mercado YES/NO estándar.
const BinaryOutcomeCount = 2

// OutcomeIndexForLabel mapea un label de outcome a su index 0-based dentro
// del orden del mercado. En binarios, "yes"/"no" mapean a 0/1. En mercados
// multi-outcome el caller aporta la lista ordenada de labels del mercado y
// el index es la posición del label en ella.
func OutcomeIndexForLabel(label string, outcomes []string) (int, error) {
	l := strings.ToLower(strings.TrimSpace(label))

	if len(outcomes) == 0 {
		switch l {
		case "yes":
			return 0, nil
		case "no":
			return 1, nil
		}
		return 0, fmt.Errorf("outcome label %q has no mapping without an outcome list", label)
	}

	for i, o := range outcomes {
		if strings.ToLower(strings.TrimSpace(o)) == l {
			return i, nil
		}
	}
	return 0, fmt.Errorf("outcome label %q not in market outcomes %v", label, outcomes)
}

// LabelForOutcomeIndex es la inversa de OutcomeIndexForLabel.
func LabelForOutcomeIndex(index int, outcomes []string) (string, error) {
	if len(outcomes) == 0 {
		switch index {
		case 0:
			return "Yes", nil
		case 1:
			return "No", nil
		}
		return "", fmt.Errorf("outcome index %d out of range for binary market", index)
	}
	if index < 0 || index >= len(outcomes) {
		return "", fmt.Errorf("outcome index %d out of range for %d outcomes", index, len(outcomes))
	}
	return outcomes[index], nil
}
