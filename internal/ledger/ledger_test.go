package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestReserveAndLookup(t *testing.T) {
	l := openMemory(t)

	e := Entry{MessageID: "abc", TotalChunks: 3, ChunkSize: 500, Digest: "d", Compression: "none"}
	require.NoError(t, l.Reserve(e))

	got, err := l.Lookup("abc")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalChunks)
	assert.Equal(t, "d", got.Digest)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestReserveRejectsReuse(t *testing.T) {
	l := openMemory(t)

	require.NoError(t, l.Reserve(Entry{MessageID: "dup"}))
	err := l.Reserve(Entry{MessageID: "dup", TotalChunks: 9})
	assert.ErrorIs(t, err, ErrExists)

	got, err := l.Lookup("dup")
	require.NoError(t, err)
	assert.Zero(t, got.TotalChunks, "first reservation must win")
}

func TestReserveIsAtomicUnderContention(t *testing.T) {
	l := openMemory(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(Entry{MessageID: "race"}) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRelease(t *testing.T) {
	l := openMemory(t)

	require.NoError(t, l.Reserve(Entry{MessageID: "gone"}))
	require.NoError(t, l.Release("gone"))
	_, err := l.Lookup("gone")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.Release("never-issued"))
	entries, err := l.List(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLookupMissing(t *testing.T) {
	_, err := openMemory(t).Lookup("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	l := openMemory(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Reserve(Entry{MessageID: fmt.Sprintf("m%d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	all, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m4", all[0].MessageID)
	assert.Equal(t, "m0", all[4].MessageID)

	two, err := l.List(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m4", "m3"}, []string{two[0].MessageID, two[1].MessageID})
}

func TestOpenOnDiskPersists(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, l.Reserve(Entry{MessageID: "kept", TotalChunks: 2}))
	require.NoError(t, l.Close())

	l, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer l.Close()
	got, err := l.Lookup("kept")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalChunks)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrNoPath)
}
