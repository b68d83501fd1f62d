package unfold

import "errors"

var (
	// ErrEmptyRoot is returned when no root directory is given.
	ErrEmptyRoot = errors.New("root directory cannot be empty")
	// ErrRootNotDir is returned when the root exists but is not a directory.
	ErrRootNotDir = errors.New("root is not a directory")
	// ErrNegativeFloor is returned for a floor below zero.
	ErrNegativeFloor = errors.New("floor cannot be negative")
)
