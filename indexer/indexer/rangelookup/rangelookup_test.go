package rangelookup

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(firsts []uint64, end uint64) *Lookup {
	l := New()
	for i, f := range firsts {
		next := end
		if i+1 < len(firsts) {
			next = firsts[i+1]
		}
		l.Push(f, next)
	}
	return l
}

func TestHeight(t *testing.T) {
	// Height 2 created no outputs.
	l := build([]uint64{0, 3, 5, 5, 9}, 12)

	tests := []struct {
		index  uint64
		height int
		ok     bool
	}{
		{0, 0, true},
		{2, 0, true},
		{3, 1, true},
		{4, 1, true},
		{5, 3, true},
		{8, 3, true},
		{9, 4, true},
		{11, 4, true},
		{12, 0, false},
	}
	for _, test := range tests {
		height, ok := l.Height(test.index)
		if ok != test.ok || height != test.height {
			t.Errorf("Height(%d): got %d %v, want %d %v", test.index,
				height, ok, test.height, test.ok)
		}
	}
}

func TestCacheHitsAndEviction(t *testing.T) {
	firsts := make([]uint64, 20)
	for i := range firsts {
		firsts[i] = uint64(i * 10)
	}
	l := build(firsts, 200)

	l.Height(15)
	l.Height(16)
	l.Height(17)
	hits, misses := l.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)

	// Eight more heights overflow the cache and push out height 1, the
	// least recently hit entry.
	for h := 2; h < 10; h++ {
		l.Height(uint64(h * 10))
	}
	_, misses = l.Stats()
	assert.Equal(t, uint64(9), misses)

	l.Height(15)
	hits, _ = l.Stats()
	assert.Equal(t, uint64(2), hits, "height 1 was evicted")

	l.Height(95)
	hits, _ = l.Stats()
	assert.Equal(t, uint64(3), hits)

	l.Height(150)
	l.Height(95)
	hits, _ = l.Stats()
	assert.Equal(t, uint64(4), hits, "height 9 was refreshed and survives")
}

func TestPushAndTruncate(t *testing.T) {
	l := build([]uint64{0, 4}, 8)
	h, ok := l.Height(7)
	require.True(t, ok)
	assert.Equal(t, 1, h)

	l.Push(8, 10)
	h, ok = l.Height(9)
	require.True(t, ok)
	assert.Equal(t, 2, h)
	h, ok = l.Height(7)
	require.True(t, ok)
	assert.Equal(t, 1, h)

	l.Truncate(2)
	assert.Equal(t, 2, l.Len())
	_, ok = l.Height(8)
	assert.False(t, ok)
	h, ok = l.Height(7)
	require.True(t, ok)
	assert.Equal(t, 1, h)

	l.Truncate(0)
	_, ok = l.Height(0)
	assert.False(t, ok)
}

func TestMatchesBinarySearch(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	firsts := make([]uint64, 500)
	var next uint64
	for i := range firsts {
		firsts[i] = next
		next += uint64(r.Intn(5))
	}
	l := build(firsts, next+1)
	fork := l.Fork()

	for i := 0; i < 5000; i++ {
		index := uint64(r.Int63n(int64(next + 1)))
		want := sort.Search(len(firsts), func(i int) bool { return firsts[i] > index }) - 1
		got, ok := l.Height(index)
		require.True(t, ok)
		require.Equal(t, want, got, "index %d", index)
		got, ok = fork.Height(index)
		require.True(t, ok)
		require.Equal(t, want, got, "fork index %d", index)
	}
}

func TestFollowKeepsCacheAcrossPushes(t *testing.T) {
	l := build([]uint64{0, 10, 20}, 30)
	fork := l.Fork()
	_, ok := fork.Height(5)
	require.True(t, ok)

	l.Push(30, 40)
	fork.Follow(l)
	height, ok := fork.Height(35)
	require.True(t, ok)
	assert.Equal(t, 3, height)
	height, ok = fork.Height(7)
	require.True(t, ok)
	assert.Equal(t, 0, height)
	hits, misses := fork.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)

	// A truncated parent drops the cached ranges.
	l.Truncate(1)
	l.Push(10, 15)
	fork.Follow(l)
	height, ok = fork.Height(12)
	require.True(t, ok)
	assert.Equal(t, 1, height)
	_, ok = fork.Height(20)
	assert.False(t, ok)
	hits, _ = fork.Stats()
	assert.EqualValues(t, 1, hits)

	// Following another parent starts cold.
	other := build([]uint64{0, 100}, 200)
	fork.Follow(other)
	height, ok = fork.Height(150)
	require.True(t, ok)
	assert.Equal(t, 1, height)
	hits, _ = fork.Stats()
	assert.EqualValues(t, 1, hits)
}
