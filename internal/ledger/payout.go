package ledger

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// CheckedAdd adds two non-negative amounts, failing with ErrMathOverflow instead of wrapping
func CheckedAdd(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: negative operand %d + %d", ErrMathOverflow, a, b)
	}
	if a > math.MaxInt64-b {
		return 0, fmt.Errorf("%w: %d + %d", ErrMathOverflow, a, b)
	}
	return a + b, nil
}

// CalculateWinnings returns floor(amount * (totalYes + totalNo) / winningPool)
// for a stake on the winning side of a market resolved to outcome.
//
// The product is computed in 256 bits. A zero winning pool, a stake larger
// than its own side, or a result that does not fit an int64 is ErrMathOverflow.
func CalculateWinnings(amount, totalYes, totalNo int64, outcome Outcome) (int64, error) {
	var winningPool int64
	switch outcome {
	case OutcomeYes:
		winningPool = totalYes
	case OutcomeNo:
		winningPool = totalNo
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	if amount < 0 {
		return 0, fmt.Errorf("%w: negative stake %d", ErrMathOverflow, amount)
	}
	if winningPool <= 0 {
		return 0, fmt.Errorf("%w: empty winning pool", ErrMathOverflow)
	}
	if amount > winningPool {
		return 0, fmt.Errorf("%w: stake %d exceeds winning pool %d", ErrMathOverflow, amount, winningPool)
	}

	totalPool, err := CheckedAdd(totalYes, totalNo)
	if err != nil {
		return 0, err
	}

	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(amount)), uint256.NewInt(uint64(totalPool)))
	if overflow {
		return 0, fmt.Errorf("%w: %d * %d", ErrMathOverflow, amount, totalPool)
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(uint64(winningPool)))
	if !quotient.IsUint64() || quotient.Uint64() > math.MaxInt64 {
		return 0, fmt.Errorf("%w: payout does not fit in 64 bits", ErrMathOverflow)
	}
	return int64(quotient.Uint64()), nil
}
