package textindex

import "errors"

var errMismatchedLengths = errors.New("textindex: ids and texts must have the same length")
