package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/waxmem/wax/errs"
	"github.com/waxmem/wax/wal"
	"github.com/waxmem/wax/waxfmt"
)

// walWriter builds a wal.Writer seeded with the store's current ring
// position, and folds the writer's post-call counters back into the
// store's cumulative totals once the caller is done with it.
func (s *Store) walWriter() *wal.Writer {
	return wal.NewWriterWithState(s.file, s.walOffset, s.walSize,
		s.walWritePos, s.walCheckpointPos, s.walPendingBytes, s.walLastSequence)
}

func (s *Store) adoptWriterState(w *wal.Writer) {
	s.walWritePos = w.WritePos()
	s.walCheckpointPos = w.CheckpointPos()
	s.walPendingBytes = w.PendingBytes()
	s.walLastSequence = w.LastSequence()
	s.walWrapCount += w.WrapCount()
	s.walCheckpointCount += w.CheckpointCount()
	s.walSentinelWriteCount += w.SentinelWriteCount()
	s.walWriteCallCount += w.WriteCallCount()
}

// Put appends content as a new frame, returning its id. The frame is
// durable in the WAL immediately but only visible to FrameContent/
// FrameMeta and Stats.FrameCount after the next Commit.
func (s *Store) Put(content []byte, metadata Metadata) (uint32, error) {
	if !s.isOpen {
		return 0, errs.NewStore("put", errors.New("store is closed"))
	}

	frameID := s.nextFrameID
	payloadOffset, err := s.fileSize()
	if err != nil {
		return 0, errs.NewStore("put", err)
	}
	payloadLength := uint64(len(content))
	storedChecksum := frameStoredChecksum(content)

	if len(content) > 0 {
		if _, err := s.file.WriteAt(content, int64(payloadOffset)); err != nil {
			return 0, errs.NewStore("put", fmt.Errorf("writing payload: %w", err))
		}
	}

	mutation := wal.PutFrameMutation{
		FrameID:           frameID,
		TimestampMs:       time.Now().UnixMilli(),
		Metadata:          metadata,
		PayloadOffset:     payloadOffset,
		PayloadLength:     payloadLength,
		CanonicalEncoding: waxfmt.CanonicalPlain,
		CanonicalLength:   payloadLength,
		CanonicalChecksum: storedChecksum,
		StoredChecksum:    storedChecksum,
	}

	w := s.walWriter()
	if _, err := w.Append(wal.EncodePutFrame(mutation)); err != nil {
		return 0, errs.NewStore("put", err)
	}
	s.adoptWriterState(w)

	s.stats.PendingFrames++
	s.nextFrameID = frameID + 1
	s.dirty = true
	s.hasLocalMutations = true
	return frameID, nil
}

// PutBatch applies Put to each content in order, matching metadatas
// positionally. metadatas may be nil, or must have the same length as
// contents.
func (s *Store) PutBatch(contents []([]byte), metadatas []Metadata) ([]uint32, error) {
	if len(metadatas) != 0 && len(metadatas) != len(contents) {
		return nil, errs.NewStore("put_batch", errors.New("metadatas length must be zero or match contents length"))
	}
	ids := make([]uint32, 0, len(contents))
	for i, content := range contents {
		var md Metadata
		if len(metadatas) != 0 {
			md = metadatas[i]
		}
		id, err := s.Put(content, md)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete marks frameID for deletion at the next Commit.
func (s *Store) Delete(frameID uint32) error {
	if !s.isOpen {
		return errs.NewStore("delete", errors.New("store is closed"))
	}
	if frameID >= s.nextFrameID {
		return errs.NewStore("delete", errors.New("delete frame_id out of range"))
	}

	w := s.walWriter()
	if _, err := w.Append(wal.EncodeDeleteFrame(wal.DeleteFrameMutation{FrameID: frameID})); err != nil {
		return errs.NewStore("delete", err)
	}
	s.adoptWriterState(w)

	s.dirty = true
	s.hasLocalMutations = true
	return nil
}

// Supersede records that supersedingID replaces supersededID at the
// next Commit. Cycle and conflict detection happen during Commit, once
// the whole pending batch is known.
func (s *Store) Supersede(supersededID, supersedingID uint32) error {
	if !s.isOpen {
		return errs.NewStore("supersede", errors.New("store is closed"))
	}
	if supersededID == supersedingID {
		return errs.NewStore("supersede", errors.New("supersede self-reference is not allowed"))
	}
	if supersededID >= s.nextFrameID || supersedingID >= s.nextFrameID {
		return errs.NewStore("supersede", errors.New("supersede frame_id out of range"))
	}

	w := s.walWriter()
	payload := wal.EncodeSupersedeFrame(wal.SupersedeFrameMutation{SupersededID: supersededID, SupersedingID: supersedingID})
	if _, err := w.Append(payload); err != nil {
		return errs.NewStore("supersede", err)
	}
	s.adoptWriterState(w)

	s.dirty = true
	s.hasLocalMutations = true
	return nil
}

// PutEmbedding records frameID's embedding in the embedding journal at
// the next Commit. It never affects the frame TOC itself.
func (s *Store) PutEmbedding(frameID uint32, vector []float32) error {
	if !s.isOpen {
		return errs.NewStore("put_embedding", errors.New("store is closed"))
	}
	if frameID >= s.nextFrameID {
		return errs.NewStore("put_embedding", errors.New("put_embedding frame_id out of range"))
	}

	w := s.walWriter()
	mutation := wal.PutEmbeddingMutation{FrameID: frameID, Dimension: uint32(len(vector)), Vector: vector}
	if _, err := w.Append(wal.EncodePutEmbedding(mutation)); err != nil {
		return errs.NewStore("put_embedding", err)
	}
	s.adoptWriterState(w)

	s.dirty = true
	s.hasLocalMutations = true
	return nil
}
