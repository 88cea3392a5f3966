package auth

import "errors"

var (
	ErrAuthInvalid = errors.New("invalid credentials")
	ErrAuthExpired = errors.New("credentials expired")
)
