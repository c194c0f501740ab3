package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateWinnings(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		totalYes int64
		totalNo  int64
		outcome  Outcome
		want     int64
	}{
		{"single winner takes everything", 200, 200, 200, OutcomeYes, 400},
		{"floor of pro-rata share", 30, 300, 100, OutcomeYes, 40},
		{"rounds down", 10, 30, 10, OutcomeYes, 13},
		{"no side wins", 50, 300, 100, OutcomeNo, 200},
		{"uncontested side returns stake", 100, 0, 100, OutcomeNo, 100},
		{"zero stake pays nothing", 0, 100, 100, OutcomeYes, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateWinnings(tt.amount, tt.totalYes, tt.totalNo, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateWinningsWideProduct(t *testing.T) {
	// amount * total overflows 64 bits but the quotient fits
	amount := int64(math.MaxInt64 / 2)
	got, err := CalculateWinnings(amount, amount, amount, OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, amount*2, got)
}

func TestCalculateWinningsErrors(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		totalYes int64
		totalNo  int64
		outcome  Outcome
		wantErr  error
	}{
		{"empty winning pool", 10, 0, 100, OutcomeYes, ErrMathOverflow},
		{"stake exceeds own side", 101, 100, 100, OutcomeYes, ErrMathOverflow},
		{"negative stake", -1, 100, 100, OutcomeYes, ErrMathOverflow},
		{"total pool overflows", 1, math.MaxInt64, 1, OutcomeYes, ErrMathOverflow},
		{"unset outcome", 10, 100, 100, OutcomeUnset, ErrInvalidOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateWinnings(tt.amount, tt.totalYes, tt.totalNo, tt.outcome)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(40, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)

	_, err = CheckedAdd(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)
	assert.Equal(t, KindArithmetic, KindOf(err))

	_, err = CheckedAdd(-1, 1)
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestMarketTotalPool(t *testing.T) {
	m := &Market{TotalYesAmount: 300, TotalNoAmount: 100}
	pool, err := m.TotalPool()
	require.NoError(t, err)
	assert.Equal(t, int64(400), pool)

	m.TotalYesAmount = math.MaxInt64
	_, err = m.TotalPool()
	assert.ErrorIs(t, err, ErrMathOverflow)
}

func TestParseOutcome(t *testing.T) {
	for _, in := range []string{"yes", "YES", " y ", "true"} {
		o, err := ParseOutcome(in)
		require.NoError(t, err)
		assert.Equal(t, OutcomeYes, o)
	}
	for _, in := range []string{"no", "No", "n", "false"} {
		o, err := ParseOutcome(in)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNo, o)
	}

	_, err := ParseOutcome("maybe")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
	assert.False(t, OutcomeUnset.Valid())
	assert.True(t, OutcomeFromBool(true).Bool())
}

func TestErrorClassification(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(ErrBetAmountTooLow))
	assert.Equal(t, KindStateConflict, KindOf(ErrMarketExpired))
	assert.Equal(t, KindNotFound, KindOf(ErrMarketNotFound))
	assert.Equal(t, KindUnauthorized, KindOf(ErrUnauthorized))
	assert.Equal(t, KindCollaborator, KindOf(assert.AnError))

	assert.Equal(t, "", CodeOf(nil))
	assert.Equal(t, "Internal", CodeOf(assert.AnError))
	assert.Equal(t, "UserLost", CodeOf(ErrUserLost))
}
