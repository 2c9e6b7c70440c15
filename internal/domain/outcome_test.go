package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

func TestOutcomeIndexForLabel_Binary(t *testing.T) {
	yes, err := domain.OutcomeIndexForLabel("Yes", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, yes)

	no, err := domain.OutcomeIndexForLabel(" NO ", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, no)

	_, err = domain.OutcomeIndexForLabel("Maybe", nil)
	assert.Error(t, err)
}

func TestOutcomeIndexForLabel_MultiOutcome(t *testing.T) {
	outcomes := []string{"Candidate A", "Candidate B", "Candidate C"}

	idx, err := domain.OutcomeIndexForLabel("candidate b", outcomes)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	label, err := domain.LabelForOutcomeIndex(2, outcomes)
	require.NoError(t, err)
	assert.Equal(t, "Candidate C", label)

	_, err = domain.LabelForOutcomeIndex(3, outcomes)
	assert.Error(t, err)
}

// Pasar cada index por label y de vuelta tiene que ser la identidad.
// Una corrección "+1" aplicada aguas abajo rompió exactamente esto.
func TestOutcomeMapping_RoundTrip(t *testing.T) {
	outcomes := []string{"Yes", "No"}
	for i := range outcomes {
		label, err := domain.LabelForOutcomeIndex(i, outcomes)
		require.NoError(t, err)
		back, err := domain.OutcomeIndexForLabel(label, outcomes)
		require.NoError(t, err)
		assert.Equal(t, i, back)
	}
}
