package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrEmptyCart             = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrRemoteRequestFailed   = errors.New("remote request failed")
	ErrAuthenticationExpired = errors.New("authentication expired")
	ErrNotFound              = errors.New("not found")
	ErrSubmissionInProgress  = errors.New("submission already in progress")
	ErrTerminalLimit         = errors.New("terminal limit reached")
)

// StockError reports a quantity that exceeds the last-known stock snapshot.
type StockError struct {
	UnitID    int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for unit %d: requested %d, remaining %d", e.UnitID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Validationf builds an error that matches ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
