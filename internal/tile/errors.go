package tile

import "errors"

// ErrMalformedFilename is returned when a raster name cannot be split into
// the date and product tokens used for grouping.
var ErrMalformedFilename = errors.New("malformed tile filename")
