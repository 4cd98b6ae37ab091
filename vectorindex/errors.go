package vectorindex

import "errors"

var (
	errMismatchedLengths          = errors.New("vectorindex: frame ids and vectors must have the same length")
	errDimensionMismatch          = errors.New("vectorindex: vector dimension mismatch")
	errUnknownSimilarity          = errors.New("vectorindex: unknown similarity metric")
	errUnsupportedSegmentEncoding = errors.New("vectorindex: segment encoding is not dense-float")
)
