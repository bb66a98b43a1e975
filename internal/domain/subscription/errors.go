package subscription

import "errors"

var (
	ErrNotFound     = errors.New("subscription not found")
	ErrInvalidCycle = errors.New("invalid billing cycle")
	ErrInvalidRule  = errors.New("invalid notification rule")
)
