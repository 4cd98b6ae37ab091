package wal

import "errors"

var (
	errSequenceExhausted = errors.New("wal sequence space exhausted")
	errPayloadTooLarge    = errors.New("payload does not fit in wal ring")
	errCapacityExceeded   = errors.New("wal capacity exceeded")
	errRingTooSmall       = errors.New("wal_size smaller than one record header")

	errTruncatedMutation  = errors.New("truncated wal mutation payload")
	errStringTooLong      = errors.New("wal mutation string field exceeds limit")
	errArrayCountTooLarge = errors.New("wal mutation array count exceeds limit")
	errEmptyPayload       = errors.New("empty wal mutation payload")
	errExcessBytes        = errors.New("excess bytes in wal mutation payload")
)
