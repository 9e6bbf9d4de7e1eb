package arena

import "errors"

var (
	// ErrIndexSpaceExhausted is raised (as a panic) by Add once more than
	// MaxLen elements were inserted. It is not recoverable.
	ErrIndexSpaceExhausted = errors.New("[xarena] 32-bit index space exhausted")
	ErrArenaReleased       = errors.New("[xarena] arena released")
	ErrRefOutOfRange       = errors.New("[xarena] ref out of range")
	ErrSeedConsumed        = errors.New("[xarena] seed already consumed")
	ErrNilSeed             = errors.New("[xarena] nil seed")
	ErrReleaserPanicked    = errors.New("[xarena] releaser panicked")
)
