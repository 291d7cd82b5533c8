package net

import "github.com/pkg/errors"

// Errors are always returned wrapped.  Use errors.Cause to compare.
var (
	InvalidPortError      = errors.New("NET:INVALID_PORT")
	InvalidIPError        = errors.New("NET:INVALID_IP")
	NotReadyError         = errors.New("NET:CONNECTION:NOT_READY")
	UnsupportedDataError  = errors.New("NET:UNSUPPORTED_DATA")
	NonexistentError      = errors.New("NET:CONNECTION:NONEXISTENT")
	PortNotAvailableError = errors.New("NET:PORT_NOT_AVAILABLE")
	CancelledError        = errors.New("NET:CANCELLED")
)
