package wekeo

import "errors"

var (
	// ErrAuth is returned when the HDA broker rejects the credentials or token.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound is returned when a search matches nothing or an item is gone.
	ErrNotFound = errors.New("no matching products")

	// ErrTransient is returned for network failures and server-side errors.
	ErrTransient = errors.New("transient catalog error")

	// ErrInvalidDate is returned when a query date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)
