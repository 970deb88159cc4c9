package services

import "errors"

var (
	ErrInvalidFormat = errors.New("invalid URL or short code format")
	ErrConflict      = errors.New("short code already exists")
	ErrNotFound      = errors.New("short link not found")
	ErrExpired       = errors.New("short link has expired")
	ErrForbidden     = errors.New("operation not permitted")

	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
	ErrKeyExpired = errors.New("API key has expired")
)
