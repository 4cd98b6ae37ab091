package store

import (
	"errors"
	"fmt"

	"github.com/waxmem/wax/compress"
	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/timeindex"
	"github.com/waxmem/wax/waxfmt"
)

// Segments returns the committed segment catalog, in id order.
func (s *Store) Segments() []waxfmt.Segment {
	out := make([]waxfmt.Segment, len(s.toc.Segments))
	copy(out, s.toc.Segments)
	return out
}

// SegmentBytes reads segmentID's on-disk bytes and decompresses them
// with the codec recorded in its catalog entry.
func (s *Store) SegmentBytes(segmentID uint32) ([]byte, error) {
	if !s.isOpen {
		return nil, errs.NewStore("segment_bytes", errors.New("store is closed"))
	}
	if segmentID >= uint32(len(s.toc.Segments)) {
		return nil, errs.NewStore("segment_bytes", fmt.Errorf("segment %d not found", segmentID))
	}
	seg := s.toc.Segments[segmentID]
	raw, err := s.readExactly(seg.BytesOffset, seg.BytesLength)
	if err != nil {
		return nil, errs.NewStore("segment_bytes", err)
	}
	codec, err := compress.GetCodec(seg.Compression)
	if err != nil {
		return nil, errs.NewStore("segment_bytes", err)
	}
	decoded, err := codec.Decompress(raw)
	if err != nil {
		return nil, errs.NewStore("segment_bytes", fmt.Errorf("decompressing %s segment: %w", seg.Kind, err))
	}
	return decoded, nil
}

// Manifests returns the committed lex/vec/time index manifests. Any of
// the three may be nil if that index has never been published.
func (s *Store) Manifests() (lex, vec, timeIdx *waxfmt.IndexManifest) {
	return s.toc.LexManifest, s.toc.VecManifest, s.toc.TimeManifest
}

// SetIndexManifest attaches segmentID (already added via PutSegment in
// this session) as the kind-specific index manifest, taking effect at
// the next Commit alongside the frame TOC.
func (s *Store) SetIndexManifest(kind waxfmt.SegmentKind, segmentID uint32) error {
	if !s.isOpen {
		return errs.NewStore("set_index_manifest", errors.New("store is closed"))
	}
	if segmentID >= uint32(len(s.toc.Segments)) {
		return errs.NewStore("set_index_manifest", fmt.Errorf("segment %d not found", segmentID))
	}
	seg := s.toc.Segments[segmentID]
	manifest := &waxfmt.IndexManifest{
		SegmentID:   seg.ID,
		BytesOffset: seg.BytesOffset,
		BytesLength: seg.BytesLength,
		Checksum:    seg.Checksum,
	}
	switch kind {
	case waxfmt.SegmentLex:
		s.toc.LexManifest = manifest
	case waxfmt.SegmentVec:
		s.toc.VecManifest = manifest
	case waxfmt.SegmentTime:
		s.toc.TimeManifest = manifest
	default:
		return errs.NewStore("set_index_manifest", fmt.Errorf("unsupported manifest kind %s", kind))
	}
	s.dirty = true
	s.hasLocalMutations = true
	return nil
}

// loadTimeIndex decodes the committed time-kind segment (if any) into a
// per-frame timestamp slice, during loadState before s.isOpen is set.
// A store with no time manifest yet (never committed with frames, or
// recovered from before C10 existed) yields an all-zero slice sized to
// toc.Frames.
func (s *Store) loadTimeIndex(toc waxfmt.TOC) ([]int64, error) {
	if toc.TimeManifest == nil {
		return make([]int64, len(toc.Frames)), nil
	}
	m := toc.TimeManifest
	raw, err := s.readExactly(m.BytesOffset, m.BytesLength)
	if err != nil {
		return nil, err
	}
	var segment *waxfmt.Segment
	for i := range toc.Segments {
		if toc.Segments[i].ID == m.SegmentID {
			segment = &toc.Segments[i]
			break
		}
	}
	if segment == nil {
		return nil, fmt.Errorf("time manifest references unknown segment %d", m.SegmentID)
	}
	codec, err := compress.GetCodec(segment.Compression)
	if err != nil {
		return nil, err
	}
	decoded, err := codec.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompressing time segment: %w", err)
	}
	timestamps, err := timeindex.Decode(decoded)
	if err != nil {
		return nil, err
	}
	if len(timestamps) < len(toc.Frames) {
		padded := make([]int64, len(toc.Frames))
		copy(padded, timestamps)
		timestamps = padded
	}
	return timestamps, nil
}

// EmbeddingJournal returns the committed embedding journal entries
//, the durable record memory.Open
// warm-starts vectorindex from.
func (s *Store) EmbeddingJournal() ([]waxfmt.EmbeddingEntry, error) {
	for _, ext := range s.toc.Extensions {
		if ext.Tag != waxfmt.ExtEmbeddingJournal {
			continue
		}
		entries, err := waxfmt.DecodeEmbeddingJournal(ext.Data)
		if err != nil {
			return nil, errs.NewStore("embedding_journal", err)
		}
		return entries, nil
	}
	return nil, nil
}
