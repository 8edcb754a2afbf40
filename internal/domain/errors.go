package domain

import "errors"

var (
	ErrEmptyTraceID    = errors.New("trace_id is required")
	ErrTraceNotFound   = errors.New("trace not found")
	ErrTraceTerminated = errors.New("trace already terminated")
	ErrNoActiveTrace   = errors.New("no active trace")
)
