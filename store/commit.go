package store

import (
	"errors"
	"fmt"

	"github.com/waxmem/wax/compress"
	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/internal/lease"
	"github.com/waxmem/wax/timeindex"
	"github.com/waxmem/wax/wal"
	"github.com/waxmem/wax/waxfmt"
)

// detectSupersedeCycle walks the supersedes chain from supersededID and
// reports an error if it reaches supersedingID; the walk is bounded at
// the current frame count.
func detectSupersedeCycle(frames []waxfmt.Frame, supersededID, supersedingID uint32) error {
	cursor := supersededID
	for hops := 0; hops < len(frames); hops++ {
		f := frames[cursor]
		if !f.HasSupersedes {
			return nil
		}
		if f.Supersedes == supersedingID {
			return fmt.Errorf("supersede %d -> %d would create a cycle", supersededID, supersedingID)
		}
		cursor = f.Supersedes
	}
	return fmt.Errorf("supersede chain from frame %d exceeds frame count", supersededID)
}

func mergeEmbeddingJournal(extensions []waxfmt.ExtensionTag, updates []wal.PutEmbeddingMutation) ([]waxfmt.ExtensionTag, error) {
	if len(updates) == 0 {
		return extensions, nil
	}

	byFrame := make(map[uint32]waxfmt.EmbeddingEntry)
	var order []uint32

	for _, ext := range extensions {
		if ext.Tag != waxfmt.ExtEmbeddingJournal {
			continue
		}
		entries, err := waxfmt.DecodeEmbeddingJournal(ext.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding existing embedding journal: %w", err)
		}
		for _, e := range entries {
			if _, seen := byFrame[e.FrameID]; !seen {
				order = append(order, e.FrameID)
			}
			byFrame[e.FrameID] = e
		}
	}

	for _, u := range updates {
		if _, seen := byFrame[u.FrameID]; !seen {
			order = append(order, u.FrameID)
		}
		byFrame[u.FrameID] = waxfmt.EmbeddingEntry{FrameID: u.FrameID, Dimension: u.Dimension, Vector: u.Vector}
	}

	merged := make([]waxfmt.EmbeddingEntry, 0, len(order))
	for _, id := range order {
		merged = append(merged, byFrame[id])
	}

	out := make([]waxfmt.ExtensionTag, 0, len(extensions)+1)
	for _, ext := range extensions {
		if ext.Tag != waxfmt.ExtEmbeddingJournal {
			out = append(out, ext)
		}
	}
	out = append(out, waxfmt.ExtensionTag{Tag: waxfmt.ExtEmbeddingJournal, Data: waxfmt.EncodeEmbeddingJournal(merged)})
	return out, nil
}

// publishTimeIndex encodes timestamps as a time-kind segment and
// attaches it as the TOC's TimeManifest, to take effect alongside the
// frame TOC this same Commit is about to write.
func (s *Store) publishTimeIndex(timestamps []int64) error {
	encoded := timeindex.Encode(timestamps)
	segmentID, err := s.PutSegment(waxfmt.SegmentTime, waxfmt.CompressionZstd, encoded)
	if err != nil {
		return err
	}
	return s.SetIndexManifest(waxfmt.SegmentTime, segmentID)
}

func otherHeaderOffset(offset uint64) uint64 {
	if offset == 0 {
		return waxfmt.HeaderPageSize
	}
	return 0
}

// Commit folds every mutation appended since the last commit into a new
// TOC and durably publishes it across the four crash-fences described in
// A store with no pending mutations returns immediately.
func (s *Store) Commit() error {
	if !s.isOpen {
		return errs.NewStore("commit", errors.New("store is closed"))
	}
	if !s.dirty {
		return nil
	}

	scan, err := wal.ScanPending(s.file, s.walOffset, s.walSize, s.walCheckpointPos, s.walCommittedSeq)
	if err != nil {
		return errs.NewStore("commit", fmt.Errorf("scanning pending wal: %w", err))
	}

	frames := append([]waxfmt.Frame(nil), s.frames...)
	timestamps := append([]int64(nil), s.frameTimestamps...)
	var embeddingUpdates []wal.PutEmbeddingMutation
	var newPutFrames bool

	for _, rec := range scan.Records {
		mut, err := wal.DecodeMutation(rec.Sequence, rec.Payload)
		if err != nil {
			return errs.NewStore("commit", fmt.Errorf("decoding pending mutation at seq %d: %w", rec.Sequence, err))
		}

		switch mut.Kind {
		case waxfmt.OpPutFrame:
			put := mut.PutFrame
			if put.FrameID != uint32(len(frames)) {
				return errs.NewStore("commit", fmt.Errorf("put_frame id %d is not dense (expected %d)", put.FrameID, len(frames)))
			}
			frames = append(frames, waxfmt.Frame{
				ID:                 put.FrameID,
				PayloadOffset:      put.PayloadOffset,
				PayloadLength:      put.PayloadLength,
				PayloadChecksum:    put.CanonicalChecksum,
				CanonicalEncoding:  put.CanonicalEncoding,
				CanonicalLength:    put.CanonicalLength,
				HasCanonicalLength: put.CanonicalEncoding != waxfmt.CanonicalPlain,
				StoredChecksum:     put.StoredChecksum,
				HasStoredChecksum:  put.PayloadLength > 0,
				Status:             waxfmt.FrameLive,
			})
			timestamps = append(timestamps, put.TimestampMs)
			newPutFrames = true

		case waxfmt.OpDeleteFrame:
			del := mut.Delete
			if del.FrameID >= uint32(len(frames)) {
				return errs.NewStore("commit", fmt.Errorf("delete_frame id %d out of range", del.FrameID))
			}
			frames[del.FrameID].Status = waxfmt.FrameDeleted

		case waxfmt.OpSupersedeFrame:
			sup := mut.Supersede
			if sup.SupersededID >= uint32(len(frames)) || sup.SupersedingID >= uint32(len(frames)) {
				return errs.NewStore("commit", fmt.Errorf("supersede frame id out of range"))
			}
			if frames[sup.SupersededID].HasSupersededBy && frames[sup.SupersededID].SupersededBy != sup.SupersedingID {
				return errs.NewStore("commit", fmt.Errorf("frame %d already superseded by a different frame", sup.SupersededID))
			}
			if frames[sup.SupersedingID].HasSupersedes && frames[sup.SupersedingID].Supersedes != sup.SupersededID {
				return errs.NewStore("commit", fmt.Errorf("frame %d already supersedes a different frame", sup.SupersedingID))
			}
			if err := detectSupersedeCycle(frames, sup.SupersededID, sup.SupersedingID); err != nil {
				return errs.NewStore("commit", err)
			}
			frames[sup.SupersededID].HasSupersededBy = true
			frames[sup.SupersededID].SupersededBy = sup.SupersedingID
			frames[sup.SupersedingID].HasSupersedes = true
			frames[sup.SupersedingID].Supersedes = sup.SupersededID

		case waxfmt.OpPutEmbedding:
			embeddingUpdates = append(embeddingUpdates, *mut.PutEmbedding)

		default:
			return errs.NewStore("commit", fmt.Errorf("unknown pending mutation opcode %#x", mut.Kind))
		}
	}

	extensions, err := mergeEmbeddingJournal(s.toc.Extensions, embeddingUpdates)
	if err != nil {
		return errs.NewStore("commit", err)
	}

	// Republish the time-kind segment whenever
	// this commit folds in new put_frame mutations, so a reopened store
	// can recover per-frame creation order without decoding payloads.
	if newPutFrames {
		if err := s.publishTimeIndex(timestamps); err != nil {
			return errs.NewStore("commit", fmt.Errorf("publishing time index: %w", err))
		}
	}

	newTOC := waxfmt.TOC{
		Frames:       frames,
		Segments:     s.toc.Segments,
		LexManifest:  s.toc.LexManifest,
		VecManifest:  s.toc.VecManifest,
		TimeManifest: s.toc.TimeManifest,
		Ticket:       s.toc.Ticket,
		Extensions:   extensions,
		MerkleRoot:   s.toc.MerkleRoot,
	}

	tocBytes, err := waxfmt.EncodeTOC(newTOC)
	if err != nil {
		return errs.NewStore("commit", fmt.Errorf("encoding toc: %w", err))
	}
	var tocChecksum [waxfmt.ChecksumSize]byte
	copy(tocChecksum[:], tocBytes[len(tocBytes)-waxfmt.ChecksumSize:])

	tocOffset, err := s.fileSize()
	if err != nil {
		return errs.NewStore("commit", err)
	}
	if dataStart := s.walOffset + s.walSize; dataStart > tocOffset {
		tocOffset = dataStart
	}

	// Crash-fence 1: the new TOC is durable, but the old footer still
	// points at the old TOC, so a crash here leaves the previously
	// committed state fully intact.
	if _, err := s.file.WriteAt(tocBytes, int64(tocOffset)); err != nil {
		return errs.NewStore("commit", fmt.Errorf("writing toc: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return errs.NewStore("commit", fmt.Errorf("syncing toc: %w", err))
	}
	if err := lease.MaybeInjectFault(1); err != nil {
		return err
	}

	footerOffset := tocOffset + uint64(len(tocBytes))
	newGeneration := s.fileGeneration + 1

	w := s.walWriter()
	w.RecordCheckpoint()

	footer := waxfmt.Footer{
		TOCLen:          uint64(len(tocBytes)),
		TOCHash:         tocChecksum,
		Generation:      newGeneration,
		WALCommittedSeq: w.LastSequence(),
	}
	footerBytes := waxfmt.EncodeFooter(footer)

	// Crash-fence 2: footer and truncation are durable, but both header
	// pages still reference the old footer offset; after a crash here,
	// Open's scan for the latest footer finds this newer-generation
	// footer and prefers it over the one the headers name.
	if _, err := s.file.WriteAt(footerBytes, int64(footerOffset)); err != nil {
		return errs.NewStore("commit", fmt.Errorf("writing footer: %w", err))
	}
	if err := s.file.Truncate(int64(footerOffset) + waxfmt.FooterSize); err != nil {
		return errs.NewStore("commit", fmt.Errorf("truncating to footer: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return errs.NewStore("commit", fmt.Errorf("syncing footer: %w", err))
	}
	if err := lease.MaybeInjectFault(2); err != nil {
		return err
	}

	snapshot := waxfmt.ReplaySnapshot{
		Generation:    newGeneration,
		CommittedSeq:  w.LastSequence(),
		FooterOffset:  footerOffset,
		WritePos:      w.WritePos(),
		CheckpointPos: w.CheckpointPos(),
		PendingBytes:  w.PendingBytes(),
		LastSequence:  w.LastSequence(),
		Valid:         true,
	}

	newPrimaryOffset := otherHeaderOffset(s.primaryHeaderOffset)
	newHeaderPageGeneration := s.headerPageGeneration + 1

	primaryPage := waxfmt.HeaderPage{
		FormatVersion:        waxfmt.FormatVersion,
		VersionMajor:         waxfmt.FormatVersionMajor,
		VersionMinor:         waxfmt.FormatVersionMinor,
		HeaderPageGeneration: newHeaderPageGeneration,
		FileGeneration:       newGeneration,
		FooterOffset:         footerOffset,
		WALOffset:            s.walOffset,
		WALSize:              s.walSize,
		WALWritePos:          w.WritePos(),
		WALCheckpointPos:     w.CheckpointPos(),
		WALCommittedSeq:      w.LastSequence(),
		TOCChecksum:          tocChecksum,
		HasSnapshot:          true,
		Snapshot:             snapshot,
	}

	// Crash-fence 3: the new primary header page is durable in the slot
	// that previously held the stale generation, so selection by highest
	// generation now picks up the new state even if fence 4 never runs.
	if _, err := s.file.WriteAt(waxfmt.EncodeHeaderPage(primaryPage), int64(newPrimaryOffset)); err != nil {
		return errs.NewStore("commit", fmt.Errorf("writing primary header page: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return errs.NewStore("commit", fmt.Errorf("syncing primary header page: %w", err))
	}
	if err := lease.MaybeInjectFault(3); err != nil {
		return err
	}

	mirrorPage := primaryPage
	mirrorPage.HeaderPageGeneration = s.headerPageGeneration

	// Crash-fence 4: the mirror page lags the primary by exactly one
	// header_page_generation so it stays a valid fallback if the
	// primary's slot is later found corrupt, while carrying the same
	// committed footer/WAL state as the primary.
	if _, err := s.file.WriteAt(waxfmt.EncodeHeaderPage(mirrorPage), int64(s.primaryHeaderOffset)); err != nil {
		return errs.NewStore("commit", fmt.Errorf("writing mirror header page: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return errs.NewStore("commit", fmt.Errorf("syncing mirror header page: %w", err))
	}
	if err := lease.MaybeInjectFault(4); err != nil {
		return err
	}

	s.adoptWriterState(w)
	s.frames = frames
	s.frameTimestamps = timestamps
	s.toc = newTOC
	s.fileGeneration = newGeneration
	s.headerPageGeneration = newHeaderPageGeneration
	s.primaryHeaderOffset = newPrimaryOffset
	s.footerOffset = footerOffset
	s.walCommittedSeq = w.LastSequence()
	s.dirty = false
	s.hasLocalMutations = false
	s.stats = Stats{
		Generation:    newGeneration,
		FrameCount:    uint64(len(frames)),
		PendingFrames: 0,
	}

	return nil
}

// PutSegment compresses rawBytes with the given codec and appends it to
// the store as a new segment of the given kind, returning its segment
// id. The segment is not visible in the TOC until the next Commit
// republishes it through a manifest.
func (s *Store) PutSegment(kind waxfmt.SegmentKind, compression waxfmt.CompressionType, rawBytes []byte) (uint32, error) {
	if !s.isOpen {
		return 0, errs.NewStore("put_segment", errors.New("store is closed"))
	}

	codec, err := compress.CreateCodec(compression, kind.String())
	if err != nil {
		return 0, errs.NewStore("put_segment", err)
	}
	encoded, err := codec.Compress(rawBytes)
	if err != nil {
		return 0, errs.NewStore("put_segment", fmt.Errorf("compressing %s segment: %w", kind, err))
	}

	offset, err := s.fileSize()
	if err != nil {
		return 0, errs.NewStore("put_segment", err)
	}
	if len(encoded) > 0 {
		if _, err := s.file.WriteAt(encoded, int64(offset)); err != nil {
			return 0, errs.NewStore("put_segment", fmt.Errorf("writing segment: %w", err))
		}
	}

	segmentID := uint32(len(s.toc.Segments))
	s.toc.Segments = append(s.toc.Segments, waxfmt.Segment{
		ID:          segmentID,
		BytesOffset: offset,
		BytesLength: uint64(len(encoded)),
		Checksum:    digest.Sum(encoded),
		Compression: compression,
		Kind:        kind,
	})

	s.dirty = true
	s.hasLocalMutations = true
	return segmentID, nil
}
