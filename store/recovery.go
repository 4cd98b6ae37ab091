package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/waxfmt"
)

// footerSlice is a footer candidate found either via a header page's
// footer_offset or by scanning the file's trailing bytes for the
// footer magic.
type footerSlice struct {
	footerOffset uint64
	tocOffset    uint64
	footer       waxfmt.Footer
	tocBytes     []byte
}

func (s *Store) tryReadFooterAt(fileSize, footerOffset uint64) (*footerSlice, error) {
	if footerOffset+waxfmt.FooterSize > fileSize {
		return nil, nil
	}
	footerBytes, err := s.readExactly(footerOffset, waxfmt.FooterSize)
	if err != nil {
		return nil, nil //nolint:nilerr // any read failure just means this candidate is unusable
	}
	footer, err := waxfmt.DecodeFooter(footerBytes)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	if footer.TOCLen < waxfmt.ChecksumSize || footer.TOCLen > waxfmt.MaxTOCBytes || footer.TOCLen > footerOffset {
		return nil, nil
	}
	tocOffset := footerOffset - footer.TOCLen
	tocBytes, err := s.readExactly(tocOffset, footer.TOCLen)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	if len(tocBytes) < waxfmt.ChecksumSize {
		return nil, nil
	}
	if tocHash(tocBytes) != footer.TOCHash {
		return nil, nil
	}
	return &footerSlice{footerOffset: footerOffset, tocOffset: tocOffset, footer: footer, tocBytes: tocBytes}, nil
}

func tocHash(tocBytes []byte) [waxfmt.ChecksumSize]byte {
	var h [waxfmt.ChecksumSize]byte
	copy(h[:], tocBytes[len(tocBytes)-waxfmt.ChecksumSize:])
	return h
}

// scanForLatestFooter walks the trailing MaxFooterScanBytes of the
// file looking for footer magic, preferring the candidate with the
// highest generation (and, on a tie, the highest offset).
func (s *Store) scanForLatestFooter(fileSize uint64) (*footerSlice, error) {
	if fileSize < waxfmt.FooterSize {
		return nil, nil
	}
	scanStart := uint64(0)
	if fileSize > waxfmt.MaxFooterScanBytes {
		scanStart = fileSize - waxfmt.MaxFooterScanBytes
	}
	scanLen := fileSize - scanStart

	window, err := s.readExactly(scanStart, scanLen)
	if err != nil {
		return nil, fmt.Errorf("scanning for footer: %w", err)
	}
	if uint64(len(window)) < waxfmt.FooterSize {
		return nil, nil
	}

	var best *footerSlice
	last := len(window) - waxfmt.FooterSize
	for pos := last; pos >= 0; pos-- {
		if !bytesHavePrefix(window[pos:], waxfmt.MagicFooter[:]) {
			continue
		}
		footerOffset := scanStart + uint64(pos)
		candidate, err := s.tryReadFooterAt(fileSize, footerOffset)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			continue
		}
		if best == nil {
			best = candidate
			continue
		}
		if candidate.footer.Generation > best.footer.Generation ||
			(candidate.footer.Generation == best.footer.Generation && candidate.footerOffset > best.footerOffset) {
			best = candidate
		}
	}
	return best, nil
}

func bytesHavePrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}

// selectPreferredFooter picks the higher-generation (then higher-offset)
// candidate between two optional footer slices.
func selectPreferredFooter(fromHeader, fromOther *footerSlice) *footerSlice {
	if fromHeader == nil {
		return fromOther
	}
	if fromOther == nil {
		return fromHeader
	}
	if fromOther.footer.Generation > fromHeader.footer.Generation {
		return fromOther
	}
	if fromOther.footer.Generation == fromHeader.footer.Generation && fromOther.footerOffset > fromHeader.footerOffset {
		return fromOther
	}
	return fromHeader
}

func (s *Store) computePayloadHash(offset, length uint64) ([waxfmt.ChecksumSize]byte, error) {
	const bufSize = 1 << 20
	h := digest.New()
	buf := make([]byte, bufSize)

	remaining := length
	for remaining > 0 {
		chunk := remaining
		if chunk > bufSize {
			chunk = bufSize
		}
		n, err := s.file.ReadAt(buf[:chunk], int64(offset))
		if err != nil || uint64(n) != chunk {
			if err == nil {
				err = fmt.Errorf("short read while hashing payload")
			}
			return digest.Zero, err
		}
		h.Write(buf[:chunk])
		offset += chunk
		remaining -= chunk
	}
	return h.Sum(), nil
}

func (s *Store) deepVerifyFrames(frames []waxfmt.Frame) error {
	for _, f := range frames {
		if f.PayloadLength == 0 {
			continue
		}
		if !f.HasStoredChecksum {
			return errors.New("frame missing stored checksum")
		}
		computed, err := s.computePayloadHash(f.PayloadOffset, f.PayloadLength)
		if err != nil {
			return err
		}
		if computed != f.StoredChecksum {
			return errors.New("frame stored checksum mismatch")
		}
		if f.CanonicalEncoding == waxfmt.CanonicalPlain && computed != f.PayloadChecksum {
			return errors.New("frame canonical checksum mismatch")
		}
	}
	return nil
}

func (s *Store) deepVerifySegments(segments []waxfmt.Segment) error {
	for _, seg := range segments {
		if seg.BytesLength == 0 {
			continue
		}
		computed, err := s.computePayloadHash(seg.BytesOffset, seg.BytesLength)
		if err != nil {
			return err
		}
		if computed != seg.Checksum {
			return errors.New("segment checksum mismatch")
		}
	}
	return nil
}

type byteRange struct {
	start, end uint64
	isFrame    bool
}

// validateDataRanges checks that every committed frame payload and
// segment lies within [dataStart, dataEnd) and that no two ranges of
// the same kind overlap.
func validateDataRanges(frames []waxfmt.Frame, segments []waxfmt.Segment, dataStart, dataEnd uint64) error {
	ranges := make([]byteRange, 0, len(frames)+len(segments))

	for _, f := range frames {
		if f.PayloadLength == 0 {
			continue
		}
		if f.PayloadOffset < dataStart {
			return errors.New("frame payload below data region")
		}
		end := f.PayloadOffset + f.PayloadLength
		if end > dataEnd {
			return errors.New("frame payload exceeds committed data end")
		}
		ranges = append(ranges, byteRange{f.PayloadOffset, end, true})
	}

	for _, seg := range segments {
		if seg.BytesLength == 0 {
			continue
		}
		if seg.BytesOffset < dataStart {
			return errors.New("segment below data region")
		}
		end := seg.BytesOffset + seg.BytesLength
		if end > dataEnd {
			return errors.New("segment exceeds committed data end")
		}
		ranges = append(ranges, byteRange{seg.BytesOffset, end, false})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].end > ranges[i].start {
			switch {
			case ranges[i-1].isFrame && ranges[i].isFrame:
				return errors.New("overlapping frame payload ranges")
			case !ranges[i-1].isFrame && !ranges[i].isFrame:
				return errors.New("overlapping segment ranges")
			default:
				return errors.New("overlap between frame payload and segment range")
			}
		}
	}
	return nil
}
