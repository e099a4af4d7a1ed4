package domain

import "errors"

var (
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrInvalidUsername = errors.New("invalid username")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
)
