package carquery

import "errors"

// ErrBadRequest is returned when make, model or year is missing or invalid.
var ErrBadRequest = errors.New("carquery: bad request")

// ErrUpstream wraps any transport or decoding failure talking to CarQuery.
// The underlying cause is logged, never returned to callers.
var ErrUpstream = errors.New("carquery: upstream failure")
