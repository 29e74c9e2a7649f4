// Package storage provides the sparse integer-indexed container backing the
// octant and bundle storages of the NDT gridmap.
//
// Values are heap allocated on insertion and never moved or removed, so a
// pointer returned by Get or GetOrInsert stays valid for the lifetime of the
// Storage regardless of later insertions.
package storage

import (
	"unsafe"
)

// Index is an integer 3D voxel index. Equality is componentwise.
type Index [3]int

// Add returns the componentwise sum of i and o.
func (i Index) Add(o Index) Index {
	return Index{i[0] + o[0], i[1] + o[1], i[2] + o[2]}
}

// sizer is implemented by values that can report their own footprint.
type sizer interface {
	ByteSize() uintptr
}

// Storage maps Index keys to owned values of type V.
type Storage[V any] struct {
	items map[Index]*V
}

// New returns an empty Storage.
func New[V any]() *Storage[V] {
	return &Storage[V]{items: make(map[Index]*V)}
}

// Get returns the value stored at i, or nil.
func (s *Storage[V]) Get(i Index) *V {
	return s.items[i]
}

// GetOrInsert returns the value at i, inserting a copy of def first if i is
// absent.
func (s *Storage[V]) GetOrInsert(i Index, def V) *V {
	if v, ok := s.items[i]; ok {
		return v
	}
	v := new(V)
	*v = def
	s.items[i] = v
	return v
}

// Contains reports whether i has a value.
func (s *Storage[V]) Contains(i Index) bool {
	_, ok := s.items[i]
	return ok
}

// Len returns the number of stored values.
func (s *Storage[V]) Len() int { return len(s.items) }

// Traverse visits every (index, value) pair exactly once, in unspecified
// order. fn must not insert into s.
func (s *Storage[V]) Traverse(fn func(Index, *V)) {
	for i, v := range s.items {
		fn(i, v)
	}
}

// Indices returns a snapshot of all stored indices in unspecified order.
func (s *Storage[V]) Indices() []Index {
	out := make([]Index, 0, len(s.items))
	for i := range s.items {
		out = append(out, i)
	}
	return out
}

// ByteSize estimates the memory held by s. Values implementing
// ByteSize() uintptr report their own size.
func (s *Storage[V]) ByteSize() uintptr {
	var zero V
	entry := unsafe.Sizeof(Index{}) + unsafe.Sizeof(uintptr(0))
	size := unsafe.Sizeof(*s)
	for _, v := range s.items {
		size += entry
		if sz, ok := any(v).(sizer); ok {
			size += sz.ByteSize()
		} else {
			size += unsafe.Sizeof(zero)
		}
	}
	return size
}
