package raftlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentAppendReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := openSegment(filepath.Join(dir, "segment_1.log"), 1)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.append([][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}))
	assert.Equal(t, uint64(3), s.endIndex)

	got, err := s.readEntry(2)
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
}

func TestSegmentReopenRebuildsPositions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment_1.log")

	s, err := openSegment(path, 1)
	require.NoError(t, err)
	require.NoError(t, s.append([][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}))
	require.NoError(t, s.close())

	reopened, err := openSegment(path, 1)
	require.NoError(t, err)
	defer reopened.close()

	assert.Equal(t, uint64(3), reopened.endIndex)
	got, err := reopened.readEntry(3)
	require.NoError(t, err)
	assert.Equal(t, "ccc", string(got))
}

func TestSegmentTruncate(t *testing.T) {
	dir := t.TempDir()
	s, err := openSegment(filepath.Join(dir, "segment_1.log"), 1)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.append([][]byte{[]byte("a"), []byte("b"), []byte("c")}))
	require.NoError(t, s.truncate(2))
	assert.Equal(t, uint64(1), s.endIndex)

	_, err = s.readEntry(2)
	assert.Error(t, err)
}

func TestSegmentOutOfRange(t *testing.T) {
	dir := t.TempDir()
	s, err := openSegment(filepath.Join(dir, "segment_1.log"), 1)
	require.NoError(t, err)
	defer s.close()

	require.NoError(t, s.append([][]byte{[]byte("a")}))
	_, err = s.readEntry(5)
	assert.Error(t, err)
}
