package store

import "errors"

var (
	ErrBusinessNotFound      = errors.New("business not found")
	ErrBusinessInactive      = errors.New("business inactive")
	ErrTokenNotFound         = errors.New("token not found")
	ErrInvalidState          = errors.New("invalid token state")
	ErrAllocationConflict    = errors.New("token number allocation conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
