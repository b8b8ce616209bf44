// Package raftlog implements the on-disk segmented log and snapshot store
// backing the Raft node: append-only segment files plus an in-memory
// working set satisfying go.etcd.io/raft/v3's Storage interface.
package raftlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	segmentHeaderSize = 16 // start_index:u64 LE | end_index:u64 LE
	entryHeaderSize   = 8  // size:u64 LE
)

// segment is one append-only log file covering a contiguous index range
// [startIndex, endIndex]. endIndex < startIndex means the segment is empty.
type segment struct {
	file       *os.File
	path       string
	startIndex uint64
	endIndex   uint64

	positions map[uint64]int64 // index -> file offset of its entry header
}

// openSegment opens (or creates) the segment file at path, starting at
// startIndex. If the file already has content its header is trusted and its
// entry positions are rebuilt by scanning.
func openSegment(path string, startIndex uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}

	s := &segment{
		file:       f,
		path:       path,
		startIndex: startIndex,
		endIndex:   startIndex - 1,
		positions:  make(map[uint64]int64),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}

	if info.Size() == 0 {
		if err := s.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.rebuildPositions(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *segment) writeHeader() error {
	var buf [segmentHeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], s.startIndex)
	binary.LittleEndian.PutUint64(buf[8:16], s.endIndex)
	if _, err := s.file.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("write segment header: %w", err)
	}
	return nil
}

func (s *segment) readHeader() error {
	var buf [segmentHeaderSize]byte
	if _, err := s.file.ReadAt(buf[:], 0); err != nil {
		return fmt.Errorf("read segment header: %w", err)
	}
	s.startIndex = binary.LittleEndian.Uint64(buf[0:8])
	s.endIndex = binary.LittleEndian.Uint64(buf[8:16])
	return nil
}

func (s *segment) rebuildPositions() error {
	s.positions = make(map[uint64]int64)

	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat segment %s: %w", s.path, err)
	}

	var pos int64 = segmentHeaderSize
	index := s.startIndex
	for pos < info.Size() {
		var hdr [entryHeaderSize]byte
		if _, err := s.file.ReadAt(hdr[:], pos); err != nil {
			return fmt.Errorf("read entry header at %d in %s: %w", pos, s.path, err)
		}
		size := binary.LittleEndian.Uint64(hdr[:])
		s.positions[index] = pos
		pos += entryHeaderSize + int64(size)
		index++
	}
	return nil
}

// append writes entries in order, assigning each the next index after
// endIndex, and advances endIndex accordingly.
func (s *segment) append(entries [][]byte) error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat segment %s: %w", s.path, err)
	}
	offset := info.Size()

	for _, entry := range entries {
		var hdr [entryHeaderSize]byte
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(entry)))

		if _, err := s.file.WriteAt(hdr[:], offset); err != nil {
			return fmt.Errorf("write entry header: %w", err)
		}
		if _, err := s.file.WriteAt(entry, offset+entryHeaderSize); err != nil {
			return fmt.Errorf("write entry payload: %w", err)
		}

		s.positions[s.endIndex+1] = offset
		s.endIndex++
		offset += entryHeaderSize + int64(len(entry))
	}

	return s.writeHeader()
}

// readEntry returns the raw payload stored at index.
func (s *segment) readEntry(index uint64) ([]byte, error) {
	if index < s.startIndex || index > s.endIndex {
		return nil, fmt.Errorf("index %d out of range [%d,%d]", index, s.startIndex, s.endIndex)
	}
	pos, ok := s.positions[index]
	if !ok {
		return nil, fmt.Errorf("no entry position for index %d", index)
	}

	var hdr [entryHeaderSize]byte
	if _, err := s.file.ReadAt(hdr[:], pos); err != nil {
		return nil, fmt.Errorf("read entry header: %w", err)
	}
	size := binary.LittleEndian.Uint64(hdr[:])

	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, pos+entryHeaderSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read entry payload: %w", err)
	}
	return buf, nil
}

// truncate drops every entry at or after index, leaving the segment ending
// at index-1.
func (s *segment) truncate(index uint64) error {
	if index < s.startIndex || index > s.endIndex+1 {
		return fmt.Errorf("truncate index %d out of range [%d,%d]", index, s.startIndex, s.endIndex)
	}
	pos, ok := s.positions[index]
	if !ok {
		// index == endIndex+1: nothing to drop.
		return nil
	}
	if err := s.file.Truncate(pos); err != nil {
		return fmt.Errorf("truncate segment %s: %w", s.path, err)
	}
	for idx := range s.positions {
		if idx >= index {
			delete(s.positions, idx)
		}
	}
	s.endIndex = index - 1
	return s.writeHeader()
}

func (s *segment) isEmpty() bool {
	return s.endIndex < s.startIndex
}

// clear closes the backing file and removes it from disk; the segment struct
// must not be used afterward.
func (s *segment) clear() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close segment %s: %w", s.path, err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove segment %s: %w", s.path, err)
	}
	return nil
}

func (s *segment) close() error {
	return s.file.Close()
}
