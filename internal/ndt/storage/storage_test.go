package storage

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sized struct{ n int }

func (s *sized) ByteSize() uintptr { return 100 }

func TestStorage_GetOrInsert(t *testing.T) {
	t.Parallel()
	s := New[int]()
	assert.Nil(t, s.Get(Index{1, 2, 3}))

	v := s.GetOrInsert(Index{1, 2, 3}, 7)
	require.NotNil(t, v)
	assert.Equal(t, 7, *v)
	assert.Equal(t, 1, s.Len())

	// Present keys are returned untouched.
	again := s.GetOrInsert(Index{1, 2, 3}, 99)
	assert.Same(t, v, again)
	assert.Equal(t, 7, *again)
	assert.True(t, s.Contains(Index{1, 2, 3}))
	assert.False(t, s.Contains(Index{3, 2, 1}))
}

func TestStorage_PointersStableAcrossGrowth(t *testing.T) {
	t.Parallel()
	s := New[int]()
	first := s.GetOrInsert(Index{0, 0, 0}, 1)
	for i := 1; i < 5000; i++ {
		s.GetOrInsert(Index{i, -i, i % 7}, i)
	}
	*first = 42
	assert.Same(t, first, s.Get(Index{0, 0, 0}))
	assert.Equal(t, 42, *s.Get(Index{0, 0, 0}))
}

func TestStorage_TraverseVisitsEachOnce(t *testing.T) {
	t.Parallel()
	s := New[int]()
	want := []Index{{0, 0, 0}, {-1, 0, 5}, {3, -3, 3}, {100, 0, -100}}
	for n, i := range want {
		s.GetOrInsert(i, n)
	}

	seen := map[Index]int{}
	s.Traverse(func(i Index, v *int) { seen[i]++ })
	require.Len(t, seen, len(want))
	for _, i := range want {
		assert.Equal(t, 1, seen[i], "index %v", i)
	}

	got := s.Indices()
	less := func(a, b Index) bool {
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	}
	sort.Slice(got, func(i, j int) bool { return less(got[i], got[j]) })
	sort.Slice(want, func(i, j int) bool { return less(want[i], want[j]) })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Indices() mismatch (-want +got):\n%s", diff)
	}
}

func TestStorage_ByteSize(t *testing.T) {
	t.Parallel()
	plain := New[int]()
	empty := plain.ByteSize()
	plain.GetOrInsert(Index{}, 1)
	assert.Greater(t, plain.ByteSize(), empty)

	custom := New[sized]()
	base := custom.ByteSize()
	custom.GetOrInsert(Index{}, sized{})
	assert.GreaterOrEqual(t, custom.ByteSize()-base, uintptr(100))
}

func TestIndex_Add(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Index{0, 3, -2}, Index{1, 1, 1}.Add(Index{-1, 2, -3}))
}
