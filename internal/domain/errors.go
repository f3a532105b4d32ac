// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity already exists (unique constraint).
var ErrConflict = errors.New("conflict: resource already exists")

// ErrValidation wraps input validation failures. The message after the
// prefix is safe to show to the caller.
var ErrValidation = errors.New("validation")

// ErrUnauthorized indicates missing or rejected credentials.
var ErrUnauthorized = errors.New("unauthorized")
