package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	bs, err := NewBadgerStoreInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	bs := newTestBadgerStore(t)

	want := sampleSnapshot()
	require.NoError(t, bs.Save(want))

	got, err := bs.Load()
	require.NoError(t, err)
	require.Equal(t, want.Groups, got.Groups)
	require.Equal(t, want.Boards, got.Boards)
}

func TestBadgerStoreLoadBeforeSave(t *testing.T) {
	bs := newTestBadgerStore(t)

	snap, err := bs.Load()
	require.NoError(t, err)
	require.Empty(t, snap.Groups)
	require.Empty(t, snap.Boards)
}

func TestBadgerStoreOverwritesPreviousSnapshot(t *testing.T) {
	bs := newTestBadgerStore(t)

	require.NoError(t, bs.Save(sampleSnapshot()))

	second := EmptySnapshot()
	second.Groups["default"] = []string{"carol"}
	require.NoError(t, bs.Save(second))

	got, err := bs.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"carol"}, got.Groups["default"])
	require.NotContains(t, got.Groups, "book-club")
}

func TestBadgerStoreOnDisk(t *testing.T) {
	dir := t.TempDir()

	bs, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, bs.Save(sampleSnapshot()))
	require.NoError(t, bs.Close())

	// Reopen and confirm the snapshot survived.
	bs, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer bs.Close()

	got, err := bs.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, got.Groups["book-club"])
}
