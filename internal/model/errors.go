package model

import "errors"

var (
	ErrAuth       = errors.New("authentication failed")
	ErrValidation = errors.New("invalid payload")
	ErrNotFound   = errors.New("not found")
	ErrDependency = errors.New("dependency unavailable")
)
