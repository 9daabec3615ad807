package bot

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
	ErrUnknownSymbol  = errors.New("symbol is not tracked")
)

// PriceUnavailableError means no fresh positive price exists for a symbol.
// Only that symbol is skipped.
type PriceUnavailableError struct {
	Symbol string
	Err    error
}

func (e *PriceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no price for %s: %v", e.Symbol, e.Err)
	}
	return fmt.Sprintf("no price for %s", e.Symbol)
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Err
}
