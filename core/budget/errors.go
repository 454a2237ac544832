package budget

import "errors"

var (
	ErrInvalidCategory    = errors.New("budget: category required")
	ErrInvalidLimit       = errors.New("budget: limit must be positive")
	ErrInvalidPeriod      = errors.New("budget: unrecognised period")
	ErrNonPositiveAmount  = errors.New("budget: amount must be positive")
	ErrNoEnvelope         = errors.New("budget: no envelope for category")
	ErrBudgetExceeded     = errors.New("budget: amount exceeds available balance")
)
