package exception

import "errors"

var (
	ErrUnknownStrategyKind = errors.New("recovery: unknown strategy kind")
	ErrStrategyReconstruct = errors.New("recovery: strategy reconstruction failed")
	ErrDuplicateStrategy   = errors.New("recovery: strategy already attached")
	ErrStrategyNotFound    = errors.New("recovery: strategy not found")
)
