package common

import "github.com/pkg/errors"

var (
	ClosedError  = errors.New("COMMON:CLOSED")
	TimeoutError = errors.New("COMMON:TIMEOUT")
)
