package compiler

import "errors"

var (
	ErrParse        = errors.New("query parse failed")
	ErrUnboundPin   = errors.New("unbound pinned value")
	ErrUnboundLocal = errors.New("unbound local query value")
)
