package raftlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	spotlog "github.com/cuemby/spotmatch/pkg/log"
	"go.etcd.io/raft/v3"
	pb "go.etcd.io/raft/v3/raftpb"
)

const (
	entriesPerSegment   = 1_000_000
	segmentPrefix       = "segment_"
	segmentSuffix       = ".log"
	snapshotFileName    = "snapshot"
	snapshotTmpFileName = "snapshot.tmp"
)

// FileStore is the durable Storage implementation used by the Raft node: an
// in-memory raft.MemoryStorage fronting the applied state machine's view of
// the log, backed on disk by a set of append-only segment files plus an
// atomically-replaced snapshot file. Every mutating method here updates both
// the in-memory copy (so RawNode sees it immediately) and disk (so a
// restart can reconstruct it).
//
// FileStore embeds *raft.MemoryStorage so it satisfies raft.Storage without
// redeclaring Entries/Term/LastIndex/FirstIndex/Snapshot/InitialState.
type FileStore struct {
	*raft.MemoryStorage

	basePath  string
	segments  map[uint64]*segment // keyed by segment start index
	confState pb.ConfState        // tracked for CreateSnapshot, updated via SetConfState
}

// Open loads or initializes a FileStore rooted at basePath. If bootstrap is
// true and no snapshot exists yet, the store seeds a snapshot at index/term 1
// whose conf state holds voters, matching a fresh cluster's first node, and
// writes it to the snapshot file so a later Open finds it.
func Open(basePath string, bootstrap bool, voters []uint64) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base path %s: %w", basePath, err)
	}

	mem := raft.NewMemoryStorage()
	fs := &FileStore{
		MemoryStorage: mem,
		basePath:      basePath,
		segments:      make(map[uint64]*segment),
	}

	snapPath := filepath.Join(basePath, snapshotFileName)
	if data, err := os.ReadFile(snapPath); err == nil {
		var snap pb.Snapshot
		if err := snap.Unmarshal(data); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		if err := mem.ApplySnapshot(snap); err != nil {
			return nil, fmt.Errorf("apply loaded snapshot: %w", err)
		}
		fs.confState = snap.Metadata.ConfState
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read snapshot: %w", err)
	} else if bootstrap {
		cs := pb.ConfState{Voters: voters}
		snap := pb.Snapshot{
			Metadata: pb.SnapshotMetadata{
				Index:     1,
				Term:      1,
				ConfState: cs,
			},
		}
		if err := mem.ApplySnapshot(snap); err != nil {
			return nil, fmt.Errorf("apply bootstrap snapshot: %w", err)
		}
		fs.confState = cs
		if err := fs.writeSnapshotFile(snap); err != nil {
			return nil, err
		}
	}

	if err := fs.loadSegments(); err != nil {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) segmentPath(startIndex uint64) string {
	return filepath.Join(fs.basePath, fmt.Sprintf("%s%d%s", segmentPrefix, startIndex, segmentSuffix))
}

func (fs *FileStore) loadSegments() error {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return fmt.Errorf("read base path %s: %w", fs.basePath, err)
	}

	var starts []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		trimmed := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
		start, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			spotlog.WithComponent("raftlog").Warn().Str("file", name).Msg("skipping malformed segment file name")
			continue
		}
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	lastIndex, err := fs.MemoryStorage.LastIndex()
	if err != nil {
		return fmt.Errorf("last index: %w", err)
	}

	var toApply []pb.Entry
	for _, start := range starts {
		seg, err := openSegment(fs.segmentPath(start), start)
		if err != nil {
			return err
		}
		fs.segments[start] = seg

		for idx := seg.startIndex; idx <= seg.endIndex; idx++ {
			raw, err := seg.readEntry(idx)
			if err != nil {
				return err
			}
			var ent pb.Entry
			if err := ent.Unmarshal(raw); err != nil {
				return fmt.Errorf("unmarshal entry %d: %w", idx, err)
			}
			if ent.Index > lastIndex {
				toApply = append(toApply, ent)
			}
		}
	}

	if len(toApply) > 0 {
		if err := fs.MemoryStorage.Append(toApply); err != nil {
			return fmt.Errorf("replay entries into memory storage: %w", err)
		}
	}
	return nil
}

func (fs *FileStore) segmentStartFor(index uint64) uint64 {
	return (index / entriesPerSegment) * entriesPerSegment
}

func (fs *FileStore) getOrCreateSegment(start, firstIndex uint64) (*segment, error) {
	if seg, ok := fs.segments[start]; ok {
		return seg, nil
	}
	seg, err := openSegment(fs.segmentPath(start), firstIndex)
	if err != nil {
		return nil, err
	}
	fs.segments[start] = seg
	return seg, nil
}

// AppendEntries appends entries to the in-memory log and to their segment
// files on disk, grouping consecutive entries by the segment their index
// falls into.
func (fs *FileStore) AppendEntries(entries []pb.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := fs.MemoryStorage.Append(entries); err != nil {
		return fmt.Errorf("append to memory storage: %w", err)
	}

	bySegment := make(map[uint64][][]byte)
	firstIndex := make(map[uint64]uint64)
	var order []uint64
	for _, ent := range entries {
		start := fs.segmentStartFor(ent.Index)
		raw, err := ent.Marshal()
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", ent.Index, err)
		}
		if _, ok := bySegment[start]; !ok {
			order = append(order, start)
			firstIndex[start] = ent.Index
		}
		bySegment[start] = append(bySegment[start], raw)
	}

	for _, start := range order {
		seg, err := fs.getOrCreateSegment(start, firstIndex[start])
		if err != nil {
			return err
		}
		if err := seg.append(bySegment[start]); err != nil {
			return fmt.Errorf("append to segment %d: %w", start, err)
		}
	}
	return nil
}

// SetHardState records the current term/vote/commit in the in-memory working
// set only. It is not written to disk: a restarted store rebuilds its log
// from the snapshot file and segments and starts with an empty HardState.
func (fs *FileStore) SetHardState(hs pb.HardState) error {
	return fs.MemoryStorage.SetHardState(hs)
}

// SetConfState records the cluster's current membership, so the next
// SaveSnapshot embeds it. The Raft library itself never exposes the live
// conf state for reading, so the node loop must call this on every
// ApplyConfChange.
func (fs *FileStore) SetConfState(cs pb.ConfState) {
	fs.confState = cs
}

// ApplySnapshot installs a snapshot received from a leader, both in memory
// and durably on disk via the atomic snapshot file.
func (fs *FileStore) ApplySnapshot(snap pb.Snapshot) error {
	if err := fs.MemoryStorage.ApplySnapshot(snap); err != nil {
		return fmt.Errorf("apply snapshot to memory storage: %w", err)
	}
	fs.confState = snap.Metadata.ConfState
	return fs.writeSnapshotFile(snap)
}

// SaveSnapshot builds a new snapshot at the given applied index containing
// bizData (the state machine's serialized contents), installs it, compacts
// the in-memory log, and clears any segment files fully covered by it.
func (fs *FileStore) SaveSnapshot(bizData []byte, applied uint64) error {
	snap, err := fs.MemoryStorage.CreateSnapshot(applied, &fs.confState, bizData)
	if err != nil {
		return fmt.Errorf("create snapshot at %d: %w", applied, err)
	}

	if err := fs.writeSnapshotFile(snap); err != nil {
		return err
	}

	if err := fs.MemoryStorage.Compact(snap.Metadata.Index); err != nil {
		return fmt.Errorf("compact memory storage: %w", err)
	}

	var toRemove []uint64
	for start, seg := range fs.segments {
		if seg.endIndex <= snap.Metadata.Index {
			if err := seg.clear(); err != nil {
				return err
			}
			toRemove = append(toRemove, start)
		}
	}
	for _, start := range toRemove {
		delete(fs.segments, start)
	}
	return nil
}

func (fs *FileStore) writeSnapshotFile(snap pb.Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := filepath.Join(fs.basePath, snapshotTmpFileName)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp file: %w", err)
	}

	finalPath := filepath.Join(fs.basePath, snapshotFileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename snapshot file: %w", err)
	}
	return nil
}

// Close releases every open segment file handle.
func (fs *FileStore) Close() error {
	for _, seg := range fs.segments {
		if err := seg.close(); err != nil {
			return err
		}
	}
	return nil
}
