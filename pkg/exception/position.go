package exception

import "errors"

var (
	ErrPositionNotFound = errors.New("position: not cached")
)
