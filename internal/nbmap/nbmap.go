/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package nbmap is a read-optimized, ordered-key map adapted from
// launix-de/NonLockingReadMap for respstats: the reactor goroutine
// publishes per-connection records into it after every loop iteration,
// and an unrelated goroutine (an admin endpoint, a metrics poller) reads
// it without ever blocking the reactor and without the reactor ever
// blocking on a lock.
//
// properties of this map:
//   - read in O(log(N)), always nonblocking
//   - write in O(N*log(N)), optimistic (retries under a concurrent
//     writer, which respstats never has more than one of)
//   - good when reads vastly outnumber writes; the reactor writes once
//     per loop iteration, readers may poll far more often
package nbmap

import (
	"cmp"
	"encoding/json"
	"sort"
	"sync/atomic"
	"unsafe"
)

// KeyedValue is the entry type stored in a Map. GetKey must return a
// stable key for the lifetime of the value.
type KeyedValue[K cmp.Ordered] interface {
	GetKey() K
}

// Map is a snapshot-publishing map: inserting a new key and Remove
// install a new sorted slice behind an atomic pointer, while Set on an
// existing key swaps that key's pointer inside the current slice in
// place. Get/All read the current slice.
type Map[T KeyedValue[K], K cmp.Ordered] struct {
	p atomic.Pointer[[]*T]
}

// New returns an empty Map ready for use.
func New[T KeyedValue[K], K cmp.Ordered]() Map[T, K] {
	var m Map[T, K]
	m.p.Store(new([]*T))
	return m
}

// All returns the current snapshot slice, sorted by key. The caller must
// not mutate it. Inserts and removals install a fresh slice; replacing
// the value of an existing key updates the returned slice in place.
func (m *Map[T, K]) All() []*T {
	return *m.p.Load()
}

// Get returns the current value for key, or nil if absent.
func (m *Map[T, K]) Get(key K) *T {
	v, _, _ := m.find(key)
	return v
}

// Len returns the number of entries in the current snapshot.
func (m *Map[T, K]) Len() int {
	return len(*m.p.Load())
}

func (m *Map[T, K]) find(key K) (*T, int, *[]*T) {
	items := m.p.Load()
	lower := 0
	upper := len(*items)
	for lower < upper {
		pivot := (lower + upper) / 2
		item := (*items)[pivot]
		itemKey := (*item).GetKey()
		switch {
		case key == itemKey:
			return item, pivot, items
		case key < itemKey:
			upper = pivot
		default:
			lower = pivot + 1
		}
	}
	return nil, -1, items
}

// Set inserts or replaces the entry keyed by v.GetKey() and returns the
// value it replaced, or nil if none.
func (m *Map[T, K]) Set(v *T) *T {
	for {
		item, pivot, handle := m.find((*v).GetKey())
		if pivot != -1 {
			slot := (*unsafe.Pointer)(unsafe.Pointer(&(*handle)[pivot]))
			if !atomic.CompareAndSwapPointer(slot, unsafe.Pointer(item), unsafe.Pointer(v)) {
				continue
			}
			if !m.p.CompareAndSwap(handle, handle) {
				continue
			}
			return item
		}

		next := make([]*T, 0, len(*handle)+1)
		next = append(next, (*handle)...)
		next = append(next, v)
		sort.Slice(next, func(i, j int) bool {
			return (*next[i]).GetKey() < (*next[j]).GetKey()
		})
		if !m.p.CompareAndSwap(handle, &next) {
			continue
		}
		return nil
	}
}

// Remove deletes the entry keyed by key and returns it, or nil if absent.
func (m *Map[T, K]) Remove(key K) *T {
	for {
		item, pivot, handle := m.find(key)
		if pivot == -1 {
			return nil
		}
		next := make([]*T, 0, len(*handle)-1)
		next = append(next, (*handle)[:pivot]...)
		next = append(next, (*handle)[pivot+1:]...)
		if !m.p.CompareAndSwap(handle, &next) {
			continue
		}
		return item
	}
}

// MarshalJSON serializes the current snapshot keyed by GetKey(), mirroring
// the map shape an embedder would expect from an admin/debug endpoint.
func (m *Map[T, K]) MarshalJSON() ([]byte, error) {
	temp := make(map[K]*T)
	for _, v := range m.All() {
		temp[(*v).GetKey()] = v
	}
	return json.Marshal(temp)
}
