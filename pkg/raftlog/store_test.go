package raftlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pb "go.etcd.io/raft/v3/raftpb"
)

func TestStoreBootstrapSeedsSnapshot(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open(dir, true, []uint64{1})
	require.NoError(t, err)
	defer fs.Close()

	snap, err := fs.MemoryStorage.Snapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Metadata.Index)
	assert.EqualValues(t, 1, snap.Metadata.Term)
	assert.Equal(t, []uint64{1}, snap.Metadata.ConfState.Voters)
}

func TestStoreAppendPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open(dir, true, []uint64{1})
	require.NoError(t, err)

	entries := []pb.Entry{
		{Index: 2, Term: 1, Data: []byte("one")},
		{Index: 3, Term: 1, Data: []byte("two")},
	}
	require.NoError(t, fs.AppendEntries(entries))

	last, err := fs.MemoryStorage.LastIndex()
	require.NoError(t, err)
	assert.EqualValues(t, 3, last)
	require.NoError(t, fs.Close())

	reopened, err := Open(dir, false, nil)
	require.NoError(t, err)
	defer reopened.Close()

	last, err = reopened.MemoryStorage.LastIndex()
	require.NoError(t, err)
	assert.EqualValues(t, 3, last)

	got, err := reopened.MemoryStorage.Entries(2, 4, uint64(1<<30))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", string(got[0].Data))
	assert.Equal(t, "two", string(got[1].Data))
}

func TestStoreSaveSnapshotCompactsSegments(t *testing.T) {
	dir := t.TempDir()
	fs, err := Open(dir, true, []uint64{1})
	require.NoError(t, err)
	defer fs.Close()

	entries := []pb.Entry{
		{Index: 2, Term: 1, Data: []byte("one")},
		{Index: 3, Term: 1, Data: []byte("two")},
	}
	require.NoError(t, fs.AppendEntries(entries))
	fs.SetConfState(pb.ConfState{Voters: []uint64{1}})

	require.NoError(t, fs.SaveSnapshot([]byte("state-bytes"), 3))

	snap, err := fs.MemoryStorage.Snapshot()
	require.NoError(t, err)
	assert.EqualValues(t, 3, snap.Metadata.Index)
	assert.Equal(t, "state-bytes", string(snap.Data))
	assert.Empty(t, fs.segments, "fully-covered segments must be cleared")
}
