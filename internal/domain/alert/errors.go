package alert

import "errors"

var (
	ErrNotFound          = errors.New("fraud alert not found")
	ErrInvalidTransition = errors.New("alert status transition not allowed")
)
