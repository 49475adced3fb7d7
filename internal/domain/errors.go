package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidTick   = errors.New("tick size must be positive")
	ErrInvalidWindow = errors.New("invalid aggregation window")
	ErrUnknownVenue  = errors.New("unknown venue")
	ErrRateLimited   = errors.New("rate limited")
	ErrBadStatus     = errors.New("unexpected http status")
)
