package domain

import "errors"

var (
	// ErrInvalidPatch marks a config patch that fails validation or
	// violates a transition rule. The stored config stays untouched.
	ErrInvalidPatch = errors.New("invalid config patch")

	// ErrInsufficientHistory is the hard evaluation floor: fewer than
	// MinCandles usable bars means no verdict of any kind.
	ErrInsufficientHistory = errors.New("insufficient candle history")
)

// MinCandles is the minimum usable bar count required to evaluate any
// strategy.
const MinCandles = 30
