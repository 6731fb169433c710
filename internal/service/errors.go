package service

import "errors"

// Sentinel errors mapped to HTTP status codes at the handler boundary.
var (
	ErrValidation    = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limit exceeded")
)
