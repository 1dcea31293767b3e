package disk

import "errors"

var (
	// ErrOutOfSpace is returned when no empty block is left in the pool
	ErrOutOfSpace = errors.New("out of space")
	// ErrInvalidArgument is returned for malformed names, records or sizes
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidLocator is returned when a locator does not name an occupied
	// block of the expected owner
	ErrInvalidLocator = errors.New("invalid locator")
)
