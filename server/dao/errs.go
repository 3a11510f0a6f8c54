package dao

import "errors"

var (
	ErrConstraintViolation = errors.New("a uniqueness constraint was violated")
	ErrNotFound            = errors.New("the requested resource was not found")
	ErrAlreadyExists       = errors.New("a resource with that name already exists")
	ErrBadCredentials      = errors.New("the provided credentials are incorrect")
)
