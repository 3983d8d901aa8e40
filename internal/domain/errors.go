package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidConfig      = errors.New("invalid run configuration")
	ErrExecutionActive    = errors.New("execution is still active")
	ErrReportDirMissing   = errors.New("report directory missing")
	ErrReportFileNotFound = errors.New("report file not found")
	ErrMalformedReport    = errors.New("malformed report")
	ErrProcessGone        = errors.New("process no longer exists")
)
