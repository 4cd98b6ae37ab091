package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/waxmem/wax/digest"
	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/internal/lease"
	"github.com/waxmem/wax/wal"
	"github.com/waxmem/wax/waxfmt"
)

// Metadata is the caller-supplied key/value annotation attached to a
// frame at Put time -> id").
type Metadata map[string]string

// Stats summarizes the store's committed and pending frame counts.
type Stats struct {
	FrameCount    uint64
	PendingFrames uint64
	Generation    uint64
}

// WALStats exposes the WAL ring's bookkeeping counters.
type WALStats struct {
	WALSize               uint64
	WritePos              uint64
	CheckpointPos         uint64
	PendingBytes          uint64
	CommittedSeq          uint64
	LastSeq               uint64
	WrapCount             uint64
	CheckpointCount       uint64
	SentinelWriteCount    uint64
	WriteCallCount        uint64
	ReplaySnapshotHitCount uint64
}

// Store is one open Wax store file.
type Store struct {
	path string
	file *os.File
	lock *lease.Lease

	fileGeneration       uint64
	headerPageGeneration uint64
	// primaryHeaderOffset is the byte offset (0 or waxfmt.HeaderPageSize)
	// of the header page currently holding the higher generation. Commit
	// writes the new primary into the other slot first, then rewrites
	// this slot as the lagging mirror.
	primaryHeaderOffset uint64

	walOffset        uint64
	walSize          uint64
	walCommittedSeq  uint64
	walWritePos      uint64
	walCheckpointPos uint64
	walPendingBytes  uint64
	walLastSequence  uint64

	walWrapCount           uint64
	walCheckpointCount     uint64
	walSentinelWriteCount  uint64
	walWriteCallCount      uint64
	walReplaySnapshotHits  uint64

	footerOffset uint64
	nextFrameID  uint32

	frames []waxfmt.Frame
	toc    waxfmt.TOC
	// frameTimestamps holds frame i's creation time in milliseconds,
	// parallel to frames. Populated by Commit from put_frame WAL
	// mutations and persisted as the time-kind segment; hydrated from that segment on Open.
	frameTimestamps []int64

	dirty             bool
	hasLocalMutations bool
	isOpen            bool

	stats Stats
}

// Create initializes a new, empty store file at path (creating parent
// directories as needed) and opens it.
func Create(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.NewStore("create", fmt.Errorf("creating parent directories: %w", err))
		}
	}

	tocBytes := waxfmt.EncodeEmptyTOC()
	var tocChecksum [waxfmt.ChecksumSize]byte
	copy(tocChecksum[:], tocBytes[len(tocBytes)-waxfmt.ChecksumSize:])

	tocOffset := uint64(waxfmt.WALOffset) + uint64(waxfmt.DefaultWALSize)
	footerOffset := tocOffset + uint64(len(tocBytes))

	footer := waxfmt.Footer{
		TOCLen:          uint64(len(tocBytes)),
		TOCHash:         tocChecksum,
		Generation:      0,
		WALCommittedSeq: 0,
	}
	footerBytes := waxfmt.EncodeFooter(footer)

	pageA := waxfmt.HeaderPage{
		FormatVersion:        waxfmt.FormatVersion,
		VersionMajor:         waxfmt.FormatVersionMajor,
		VersionMinor:         waxfmt.FormatVersionMinor,
		HeaderPageGeneration: 1,
		FileGeneration:       0,
		FooterOffset:         footerOffset,
		WALOffset:            uint64(waxfmt.WALOffset),
		WALSize:              uint64(waxfmt.DefaultWALSize),
		TOCChecksum:          tocChecksum,
	}
	pageB := pageA
	pageB.HeaderPageGeneration = 0

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.NewStore("create", err)
	}

	_, err = f.WriteAt(waxfmt.EncodeHeaderPage(pageA), 0)
	if err == nil {
		_, err = f.WriteAt(waxfmt.EncodeHeaderPage(pageB), waxfmt.HeaderPageSize)
	}
	if err == nil {
		_, err = f.WriteAt(tocBytes, int64(tocOffset))
	}
	if err == nil {
		_, err = f.WriteAt(footerBytes, int64(footerOffset))
	}
	if err == nil {
		err = f.Sync()
	}
	closeErr := f.Close()
	if err != nil {
		return nil, errs.NewStore("create", err)
	}
	if closeErr != nil {
		return nil, errs.NewStore("create", closeErr)
	}

	return Open(path, true)
}

// Open opens an existing store file, replaying any pending WAL
// mutations into in-memory state. When repair is true, trailing bytes
// beyond what any pending mutation or the footer requires are
// truncated.
func Open(path string, repair bool) (*Store, error) {
	// Non-blocking: a second open on a path already held must reject
	// immediately, not wait for the first writer to close.
	lk, err := lease.TryAcquire(path)
	if err != nil {
		return nil, errs.NewStore("open", fmt.Errorf("acquiring writer lease: %w", err))
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		_ = lk.Release()
		return nil, errs.NewStore("open", err)
	}

	s := &Store{path: path, file: f, lock: lk}
	if err := s.loadState(false, repair); err != nil {
		_ = f.Close()
		_ = lk.Release()
		return nil, err
	}
	return s, nil
}

// Verify reloads the store's committed state from disk, optionally
// rehashing every frame payload and segment).
func (s *Store) Verify(deep bool) error {
	if !s.isOpen {
		return errs.NewStore("verify", errors.New("store is closed"))
	}
	return s.loadState(deep, false)
}

func (s *Store) fileSize() (uint64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (s *Store) readExactly(offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	n, err := s.file.ReadAt(buf, int64(offset))
	if err != nil || uint64(n) != length {
		if err == nil {
			err = fmt.Errorf("short read: got %d want %d", n, length)
		}
		return nil, err
	}
	return buf, nil
}

func (s *Store) loadState(deepVerify, repairTrailingBytes bool) error {
	size, err := s.fileSize()
	if err != nil {
		return errs.NewStore("load_state", err)
	}
	if size < waxfmt.HeaderRegionSize+waxfmt.FooterSize {
		return errs.NewStore("load_state", errors.New("file is too small to be a valid mv2s store"))
	}

	pageA, errA := s.tryDecodeHeader(0)
	pageB, errB := s.tryDecodeHeader(waxfmt.HeaderPageSize)
	if errA != nil && errB != nil {
		return errs.NewStore("load_state", errors.New("no valid header pages"))
	}

	var selected waxfmt.HeaderPage
	var selectedOffset uint64
	switch {
	case errA == nil && errB == nil:
		if pageA.HeaderPageGeneration >= pageB.HeaderPageGeneration {
			selected, selectedOffset = pageA, 0
		} else {
			selected, selectedOffset = pageB, waxfmt.HeaderPageSize
		}
	case errA == nil:
		selected, selectedOffset = pageA, 0
	default:
		selected, selectedOffset = pageB, waxfmt.HeaderPageSize
	}

	footerFromHeader, _ := s.tryReadFooterAt(size, selected.FooterOffset)
	var footerFromSnapshot *footerSlice
	if selected.HasSnapshot {
		footerFromSnapshot, _ = s.tryReadFooterAt(size, selected.Snapshot.FooterOffset)
	}
	footerFromScan, err := s.scanForLatestFooter(size)
	if err != nil {
		return errs.NewStore("load_state", err)
	}

	slice := selectPreferredFooter(footerFromHeader, footerFromSnapshot)
	slice = selectPreferredFooter(slice, footerFromScan)
	if slice == nil {
		return errs.NewStore("load_state", errors.New("no valid footer slice found"))
	}

	toc, err := waxfmt.DecodeTOC(slice.tocBytes)
	if err != nil {
		return errs.NewStore("load_state", fmt.Errorf("decoding toc: %w", err))
	}

	dataStart := selected.WALOffset + selected.WALSize
	dataEnd := slice.footerOffset
	if err := validateDataRanges(toc.Frames, toc.Segments, dataStart, dataEnd); err != nil {
		return errs.NewStore("load_state", err)
	}
	if deepVerify {
		if err := s.deepVerifyFrames(toc.Frames); err != nil {
			return errs.NewStore("load_state", err)
		}
		if err := s.deepVerifySegments(toc.Segments); err != nil {
			return errs.NewStore("load_state", err)
		}
	}

	committedSeq := slice.footer.WALCommittedSeq
	selectedHeaderWasStale := selected.FileGeneration != slice.footer.Generation

	var scanState wal.ScanResult
	var pendingRecords []wal.Record
	usedReplaySnapshot := false

	replaySnapshotMatches := selected.HasSnapshot &&
		selected.Snapshot.Generation == slice.footer.Generation &&
		selected.Snapshot.CommittedSeq == committedSeq &&
		selected.Snapshot.FooterOffset == slice.footerOffset

	switch {
	case replaySnapshotMatches &&
		selected.Snapshot.CheckpointPos == selected.Snapshot.WritePos &&
		wal.IsTerminalMarker(s.file, selected.WALOffset, selected.WALSize, selected.Snapshot.WritePos):
		usedReplaySnapshot = true
		scanState.LastSequence = maxU64(committedSeq, selected.Snapshot.LastSequence)
		scanState.WritePos = selected.Snapshot.WritePos % selected.WALSize
		scanState.PendingBytes = 0

	case !selectedHeaderWasStale &&
		selected.WALCheckpointPos == selected.WALWritePos &&
		wal.IsTerminalMarker(s.file, selected.WALOffset, selected.WALSize, selected.WALWritePos):
		usedReplaySnapshot = true
		scanState.LastSequence = committedSeq
		scanState.WritePos = selected.WALWritePos % selected.WALSize
		scanState.PendingBytes = 0

	default:
		scanState, err = wal.ScanPending(s.file, selected.WALOffset, selected.WALSize, selected.WALCheckpointPos, committedSeq)
		if err != nil {
			return errs.NewStore("load_state", fmt.Errorf("wal scan failed: %w", err))
		}
		pendingRecords = scanState.Records
	}

	lastSequence := maxU64(committedSeq, scanState.LastSequence)

	var effectiveCheckpointPos, effectivePendingBytes uint64
	if scanState.LastSequence <= committedSeq {
		effectiveCheckpointPos = scanState.WritePos
		effectivePendingBytes = 0
	} else {
		effectiveCheckpointPos = selected.WALCheckpointPos % selected.WALSize
		effectivePendingBytes = scanState.PendingBytes
	}

	requiredEnd := slice.footerOffset + waxfmt.FooterSize
	var pendingPutFrames uint64
	pendingMaxFrameIDPlusOne := uint64(len(toc.Frames))

	for _, rec := range pendingRecords {
		mut, err := wal.DecodeMutation(rec.Sequence, rec.Payload)
		if err != nil || mut.PutFrame == nil {
			continue
		}
		put := mut.PutFrame
		pendingPutFrames++
		if put.FrameID == math.MaxUint32 {
			return errs.NewStore("load_state", errors.New("pending wal putFrame frame_id overflow"))
		}
		putNext := uint64(put.FrameID) + 1
		if putNext > pendingMaxFrameIDPlusOne {
			pendingMaxFrameIDPlusOne = putNext
		}
		end := put.PayloadOffset + put.PayloadLength
		if end > requiredEnd {
			requiredEnd = end
		}
	}
	if requiredEnd > size {
		return errs.NewStore("load_state", errors.New("pending wal references bytes beyond file size"))
	}
	if repairTrailingBytes && size > requiredEnd {
		if err := s.file.Truncate(int64(requiredEnd)); err != nil {
			return errs.NewStore("load_state", fmt.Errorf("truncating trailing bytes: %w", err))
		}
		size = requiredEnd
	}

	s.fileGeneration = slice.footer.Generation
	s.headerPageGeneration = selected.HeaderPageGeneration
	s.primaryHeaderOffset = selectedOffset
	s.walOffset = selected.WALOffset
	s.walSize = selected.WALSize
	s.walCommittedSeq = committedSeq
	s.walWritePos = scanState.WritePos
	s.walCheckpointPos = effectiveCheckpointPos
	s.walPendingBytes = effectivePendingBytes
	s.walLastSequence = lastSequence
	s.walWrapCount = 0
	s.walCheckpointCount = 0
	s.walSentinelWriteCount = 0
	s.walWriteCallCount = 0
	if usedReplaySnapshot {
		s.walReplaySnapshotHits = 1
	} else {
		s.walReplaySnapshotHits = 0
	}
	s.footerOffset = slice.footerOffset
	s.nextFrameID = uint32(pendingMaxFrameIDPlusOne)
	s.frames = toc.Frames
	s.toc = toc
	timestamps, err := s.loadTimeIndex(toc)
	if err != nil {
		return errs.NewStore("load_state", fmt.Errorf("loading time index: %w", err))
	}
	s.frameTimestamps = timestamps
	s.dirty = scanState.LastSequence > committedSeq
	s.hasLocalMutations = false
	s.isOpen = true

	s.stats = Stats{
		Generation:    s.fileGeneration,
		FrameCount:    uint64(len(toc.Frames)),
		PendingFrames: pendingPutFrames,
	}

	return nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func (s *Store) tryDecodeHeader(offset uint64) (waxfmt.HeaderPage, error) {
	buf, err := s.readExactly(offset, waxfmt.HeaderPageSize)
	if err != nil {
		return waxfmt.HeaderPage{}, err
	}
	return waxfmt.DecodeHeaderPage(buf)
}

func frameStoredChecksum(content []byte) [waxfmt.ChecksumSize]byte {
	return digest.Sum(content)
}
