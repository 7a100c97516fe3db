package domain

import "errors"

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrUnknownHook   = errors.New("unknown hook")
	ErrInvalidScript = errors.New("invalid script")
)
