package marketplace

import "errors"

var (
	ErrUserNotFound    = errors.New("marketplace user not found")
	ErrProductNotFound = errors.New("marketplace product not found")
)
