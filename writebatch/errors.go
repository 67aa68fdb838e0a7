package writebatch

import "errors"

var (
	// ErrNegativeThreshold is returned when a threshold is below zero
	ErrNegativeThreshold = errors.New("auto-flush thresholds must not be negative")

	// ErrNoThreshold is returned when auto-flush is enabled without any threshold
	ErrNoThreshold = errors.New("auto-flush is enabled but all thresholds are off")
)
