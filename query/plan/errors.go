package plan

import "errors"

var (
	// ErrAfterTerminal is returned when an operation follows a terminal
	// operation in the same chain.
	ErrAfterTerminal = errors.New("operation after terminal operation")

	// ErrInvalidArgument is returned for argument shapes an operation
	// cannot accept.
	ErrInvalidArgument = errors.New("invalid operation argument")

	// ErrUnsupportedOp is returned for step names outside the canonical set.
	ErrUnsupportedOp = errors.New("unsupported operation")
)
