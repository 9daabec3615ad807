package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPrice    = errors.New("price must be positive and finite")
	ErrInvalidFraction = errors.New("sell fraction must be in (0, 1]")
	ErrPositionOpen    = errors.New("position already open")
)

// InsufficientFundsError rejects a buy that exceeds free cash or falls below
// the minimum trade size. Nothing is executed.
type InsufficientFundsError struct {
	Symbol    string
	Requested float64
	Available float64
	Minimum   float64
}

func (e *InsufficientFundsError) Error() string {
	if !(e.Requested > 0) {
		return fmt.Sprintf("insufficient funds for %s: nothing to spend ($%v)", e.Symbol, e.Requested)
	}
	if e.Requested < e.Minimum {
		return fmt.Sprintf("insufficient funds for %s: $%.2f is below minimum trade $%.2f", e.Symbol, e.Requested, e.Minimum)
	}
	return fmt.Sprintf("insufficient funds for %s: requested $%.2f, available $%.2f", e.Symbol, e.Requested, e.Available)
}

// NoPositionError rejects a sell on a flat symbol
type NoPositionError struct {
	Symbol string
}

func (e *NoPositionError) Error() string {
	return fmt.Sprintf("no open position in %s", e.Symbol)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError
func IsInsufficientFunds(err error) bool {
	var target *InsufficientFundsError
	return errors.As(err, &target)
}

// IsNoPosition reports whether err is a NoPositionError
func IsNoPosition(err error) bool {
	var target *NoPositionError
	return errors.As(err, &target)
}
