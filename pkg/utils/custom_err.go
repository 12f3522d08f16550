package utils

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrUnknownKind          = errors.New("unknown subscription kind")
	ErrConcurrentUpdate     = errors.New("subscription was changed by another request")
	ErrDuplicateRequest     = errors.New("request already processed")
	ErrInvalidPage          = errors.New("invalid page parameter")
	ErrInvalidPageSize      = errors.New("invalid page size parameter")
	ErrDatabaseError        = errors.New("database error")
)
