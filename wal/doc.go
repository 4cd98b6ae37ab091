// Package wal implements the fixed-capacity WAL ring (C3): a bounded
// circular log of mutation records with per-record checksums, padding,
// sentinel termination, and crash-tolerant scan/recover.
//
// A ring occupies wal_size bytes starting at wal_offset. Every record is a 48-byte header (sequence, length, flags,
// payload checksum) followed by a variable-length payload. Appends
// advance a write cursor modulo wal_size; when a record would not fit
// before the end of the ring, a padding record fills the remainder and
// the data record restarts at offset 0. A scan walks records starting
// at a checkpoint position until it observes the all-zero sentinel, a
// broken checksum, a non-monotonic sequence, or runs back into its own
// starting point.
//
// This package only understands ring mechanics and the wire shape of
// mutation payloads (Encode*/Decode* in mutation.go). It has no notion
// of frames, segments, or the TOC; the store package folds decoded
// mutations into its own state.
package wal
