package engine

import "errors"

var (
	// ErrEngineClosed is returned when operations are performed on a closed engine
	ErrEngineClosed = errors.New("engine is closed")
	// ErrNoActiveFile is returned by file operations before a file was created or restored
	ErrNoActiveFile = errors.New("no active file")
	// ErrFileActive is returned when a new file would replace one that still holds blocks
	ErrFileActive = errors.New("active file still holds blocks")
)
