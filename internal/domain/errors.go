package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidOrderBook = errors.New("invalid order book")
	ErrInvalidSettings  = errors.New("invalid settings")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnavailable      = errors.New("unavailable")
	ErrInternal         = errors.New("internal error")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
)
