package aoi

import "errors"

var (
	// ErrGeometry is returned when the boundary holds no polygonal geometry.
	ErrGeometry = errors.New("no usable polygon geometry")

	// ErrParse is returned by vector loaders for unreadable or unsupported files.
	ErrParse = errors.New("cannot parse vector file")
)
