package structmem

import "errors"

var (
	errEmptyEntity    = errors.New("structmem: entity must not be empty")
	errEmptyAttribute = errors.New("structmem: attribute must not be empty")
	errTruncated      = errors.New("structmem: truncated segment")
	errTrailingBytes  = errors.New("structmem: excess trailing bytes in segment")
)
