package collision

import "errors"

var (
	// ErrInvalidKey is returned by Tracker.TrackKey for an empty key.
	ErrInvalidKey = errors.New("collision: key must not be empty")
	// ErrKeyAlreadyTracked is returned when the same key is tracked twice.
	ErrKeyAlreadyTracked = errors.New("collision: key already tracked")
	// ErrHashCollision is returned by Tracker.TrackHash when a hash was
	// already claimed and no key is available to disambiguate it.
	ErrHashCollision = errors.New("collision: hash already tracked")
)
