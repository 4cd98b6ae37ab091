package waxfmt

import "errors"

// DecodeErrorKind enumerates the distinct decoder failure modes required
// by Each decode failure maps to exactly one kind so a
// caller can branch on it with errors.Is against the matching sentinel.
type DecodeErrorKind int

const (
	ErrKindWrongMagic DecodeErrorKind = iota
	ErrKindWrongVersion
	ErrKindTruncated
	ErrKindArrayCountOverflow
	ErrKindInvalidOptionalTag
	ErrKindChecksumMismatch
	ErrKindInvalidEnum
	ErrKindDuplicateMapKey
	ErrKindNonDenseFrameIDs
	ErrKindSegmentRangeOverlap
	ErrKindManifestWithoutSegment
	ErrKindUnsupportedExtensionTag
	ErrKindMissingCanonicalLength
	ErrKindMissingStoredChecksum
	ErrKindExcessTrailingBytes
)

var kindText = map[DecodeErrorKind]string{
	ErrKindWrongMagic:              "wrong magic",
	ErrKindWrongVersion:            "wrong version",
	ErrKindTruncated:               "truncated buffer",
	ErrKindArrayCountOverflow:      "array count overflow",
	ErrKindInvalidOptionalTag:      "invalid optional tag",
	ErrKindChecksumMismatch:        "checksum mismatch",
	ErrKindInvalidEnum:             "invalid enum value",
	ErrKindDuplicateMapKey:         "duplicate map key",
	ErrKindNonDenseFrameIDs:        "non-dense frame ids",
	ErrKindSegmentRangeOverlap:     "segment range overlap",
	ErrKindManifestWithoutSegment:  "manifest without matching segment",
	ErrKindUnsupportedExtensionTag: "unsupported extension tag",
	ErrKindMissingCanonicalLength:  "canonical length missing for compressed frame",
	ErrKindMissingStoredChecksum:   "stored checksum missing for non-empty payload",
	ErrKindExcessTrailingBytes:     "excess trailing bytes",
}

func (k DecodeErrorKind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return "unknown decode error"
}

// DecodeError is returned by every waxfmt decoder. Use errors.As to
// recover the Kind.
type DecodeError struct {
	Kind DecodeErrorKind
	Ctx  string
}

func (e *DecodeError) Error() string {
	if e.Ctx == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Ctx
}

// decodeErr constructs a *DecodeError for the given kind with context.
func decodeErr(kind DecodeErrorKind, ctx string) error {
	return &DecodeError{Kind: kind, Ctx: ctx}
}

// Is makes DecodeError comparable by kind via errors.Is(err, waxfmt.KindSentinel(k)).
func (e *DecodeError) Is(target error) bool {
	var de *DecodeError
	if errors.As(target, &de) {
		return de.Kind == e.Kind
	}
	return false
}

// KindSentinel returns a comparison value usable with errors.Is to test
// whether a returned error carries the given DecodeErrorKind.
func KindSentinel(k DecodeErrorKind) error { return &DecodeError{Kind: k} }
