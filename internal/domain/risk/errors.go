package risk

import "errors"

var (
	ErrMissingUserID    = errors.New("user id is required")
	ErrMissingProductID = errors.New("product id is required")
	ErrInvalidAmount    = errors.New("amount must be a positive decimal")
)
