package domain

import "errors"

// Rejections surfaced to callers. Each one maps to a distinct transport code.
var (
	ErrNotFound        = errors.New("not found")
	ErrOutOfStock      = errors.New("out of stock")
	ErrDuplicate       = errors.New("duplicate purchase")
	ErrAlreadyExists   = errors.New("already exists")
	ErrContention      = errors.New("contention, retry later")
	ErrOversold        = errors.New("purchase failed")
	ErrSaleNotStarted  = errors.New("sale not started")
	ErrSaleEnded       = errors.New("sale ended")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrInfrastructure marks a failure of Redis or MySQL. It is never retried
// and never downgraded to a cache miss.
var ErrInfrastructure = errors.New("infrastructure failure")
