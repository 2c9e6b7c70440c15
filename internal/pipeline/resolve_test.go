package pipeline_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
)

func TestResolve_JoinsOnCanonicalID(t *testing.T) {
	cond := testConditionID(1)
	res := resolution(cond, 1, 0)

	annotated, stats := pipeline.Resolve(
		[]domain.Position{position(cond, 0, 100, 60)},
		map[string]domain.Resolution{cond: res},
	)

	require.Len(t, annotated, 1)
	assert.True(t, annotated[0].Resolved)
	assert.Equal(t, 0, annotated[0].WinningIndex)
	require.NotNil(t, annotated[0].Payout)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 0, stats.Unresolved)
}

// Una resolución cuyo identificador falla el check de formato canónico se
// excluye del join, nunca se coerciona.
func TestResolve_ExcludesNonCanonicalResolutions(t *testing.T) {
	cond := testConditionID(1)
	bad := resolution("0x"+cond, 1, 0) // con prefijo, no canónico

	annotated, stats := pipeline.Resolve(
		[]domain.Position{position(cond, 0, 100, 60)},
		map[string]domain.Resolution{"0x" + cond: bad},
	)

	require.Len(t, annotated, 1)
	assert.False(t, annotated[0].Resolved)
	assert.Equal(t, 1, stats.ExcludedResolutions)
	assert.Equal(t, 1, stats.Unresolved)
}

func TestResolve_ExcludesInvalidPayoutVector(t *testing.T) {
	cond := testConditionID(1)
	bad := domain.Resolution{
		ConditionID:       cond,
		PayoutNumerators:  []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(1)},
		PayoutDenominator: decimal.NewFromInt(3), // los numeradores no suman eso
	}

	annotated, stats := pipeline.Resolve(
		[]domain.Position{position(cond, 0, 100, 60)},
		map[string]domain.Resolution{cond: bad},
	)

	assert.False(t, annotated[0].Resolved)
	assert.Equal(t, 1, stats.ExcludedResolutions)
}

func TestResolve_ZeroDenominatorIsUnresolvedNotError(t *testing.T) {
	cond := testConditionID(1)
	unresolved := domain.Resolution{ConditionID: cond}

	annotated, stats := pipeline.Resolve(
		[]domain.Position{position(cond, 0, 100, 60)},
		map[string]domain.Resolution{cond: unresolved},
	)

	assert.False(t, annotated[0].Resolved)
	assert.Nil(t, annotated[0].Payout)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 0, stats.ExcludedResolutions)
}

func TestResolutionWinningIndexAndPayout(t *testing.T) {
	r := resolution(testConditionID(2), 0, 0, 4) // gana el outcome 2, denominador 4
	assert.Equal(t, 2, r.WinningIndex())
	assert.True(t, r.PayoutPerShare(2).Equal(decimal.NewFromInt(1)))
	assert.True(t, r.PayoutPerShare(0).IsZero())
	assert.True(t, r.PayoutPerShare(7).IsZero()) // fuera de rango no paga nada
}
