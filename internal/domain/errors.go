package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrBookNotFound        = errors.New("order book not found")
	ErrRatioNotFound       = errors.New("buy/sell ratio not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownPair         = errors.New("pair not supported")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrDuplicate           = errors.New("duplicate opportunity")
	ErrRateLimited         = errors.New("rate limited")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrLockHeld            = errors.New("lock already held")
)

// PartialExecutionError reports a two-leg execution where one leg went
// through and the other did not. The caller owns any compensation.
type PartialExecutionError struct {
	Completed Leg
	Failed    Leg
	Err       error
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution: %s leg done, %s leg failed: %v", e.Completed, e.Failed, e.Err)
}

func (e *PartialExecutionError) Unwrap() error {
	return e.Err
}
