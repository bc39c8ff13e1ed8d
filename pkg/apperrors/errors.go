package apperrors

import "errors"

var (
	ErrEmptyKey        = errors.New("empty key")
	ErrNoFlow          = errors.New("context has no bound flow")
	ErrUnknownDatabase = errors.New("unknown database")
	ErrUnknownDriver   = errors.New("unknown database driver")
)
