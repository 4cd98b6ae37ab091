package store

import (
	"errors"
	"fmt"

	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/waxfmt"
)

// Close auto-commits any mutations made through this session's Put/
// Delete/Supersede/PutEmbedding calls, then releases the writer lease.
// Mutations that exist only as pending WAL records recovered from a
// prior crashed process are deliberately left pending for the next
// explicit Commit.
func (s *Store) Close() error {
	if !s.isOpen {
		return nil
	}
	if s.dirty && s.hasLocalMutations {
		if err := s.Commit(); err != nil {
			return err
		}
	}

	s.isOpen = false
	closeErr := s.file.Close()
	releaseErr := s.lock.Release()
	if closeErr != nil {
		return errs.NewStore("close", closeErr)
	}
	if releaseErr != nil {
		return errs.NewStore("close", releaseErr)
	}
	return nil
}

// Stats returns the store's committed and pending frame counts.
func (s *Store) Stats() Stats {
	return s.stats
}

// WalStats returns the WAL ring's current bookkeeping counters.
func (s *Store) WalStats() WALStats {
	return WALStats{
		WALSize:                s.walSize,
		WritePos:               s.walWritePos,
		CheckpointPos:          s.walCheckpointPos,
		PendingBytes:           s.walPendingBytes,
		CommittedSeq:           s.walCommittedSeq,
		LastSeq:                s.walLastSequence,
		WrapCount:              s.walWrapCount,
		CheckpointCount:        s.walCheckpointCount,
		SentinelWriteCount:     s.walSentinelWriteCount,
		WriteCallCount:         s.walWriteCallCount,
		ReplaySnapshotHitCount: s.walReplaySnapshotHits,
	}
}

// FrameMeta returns the committed metadata for frameID. Frames from
// pending, uncommitted Put calls are not visible here until Commit.
func (s *Store) FrameMeta(frameID uint32) (waxfmt.Frame, error) {
	if !s.isOpen {
		return waxfmt.Frame{}, errs.NewStore("frame_meta", errors.New("store is closed"))
	}
	if frameID >= uint32(len(s.frames)) {
		return waxfmt.Frame{}, errs.NewStore("frame_meta", fmt.Errorf("frame %d not found", frameID))
	}
	return s.frames[frameID], nil
}

// FrameMetas returns the committed metadata for every frame, in id
// order.
func (s *Store) FrameMetas() []waxfmt.Frame {
	out := make([]waxfmt.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// FrameContent reads frameID's stored payload bytes from disk.
func (s *Store) FrameContent(frameID uint32) ([]byte, error) {
	if !s.isOpen {
		return nil, errs.NewStore("frame_content", errors.New("store is closed"))
	}
	if frameID >= uint32(len(s.frames)) {
		return nil, errs.NewStore("frame_content", fmt.Errorf("frame %d not found", frameID))
	}
	f := s.frames[frameID]
	buf, err := s.readExactly(f.PayloadOffset, f.PayloadLength)
	if err != nil {
		return nil, errs.NewStore("frame_content", err)
	}
	return buf, nil
}

// FrameContents reads the stored payload bytes for each id in ids, in
// order.
func (s *Store) FrameContents(ids []uint32) ([][]byte, error) {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		content, err := s.FrameContent(id)
		if err != nil {
			return nil, err
		}
		out[i] = content
	}
	return out, nil
}
