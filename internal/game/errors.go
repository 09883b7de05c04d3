package game

import (
	"errors"
	"time"
)

// Precondition failures. These surface as direct user-facing replies;
// no state is mutated and nothing is logged as an error.
var (
	ErrGroupDisabled       = errors.New("group disabled")
	ErrNotRegistered       = errors.New("user not registered")
	ErrTargetNotRegistered = errors.New("target not registered")
	ErrTargetNotFound      = errors.New("target not found")
	ErrAmbiguousTarget     = errors.New("ambiguous target")
	ErrSelfCompare         = errors.New("cannot compare with yourself")
	ErrCompareLimit        = errors.New("compare limit reached")
	ErrRushing             = errors.New("user is rushing")
	ErrAlreadyRushing      = errors.New("already rushing")
	ErrNotRushing          = errors.New("not rushing")
	ErrRushTooShort        = errors.New("rush too short")
	ErrNotAdmin            = errors.New("not an admin")
	ErrUnknownItem         = errors.New("unknown item")
	ErrInsufficientCoins   = errors.New("insufficient coins")
	ErrItemMaxed           = errors.New("item at max capacity")
	ErrPurchaseFailed      = errors.New("purchase failed")
	ErrNoData              = errors.New("no data")
)

// CooldownError carries the remaining wait for cooldown-gated actions.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return "on cooldown for " + e.Remaining.String()
}
