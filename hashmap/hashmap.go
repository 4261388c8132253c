/*
Copyright (C) 2023, 2024  Carl-Philip Hänsch

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

// Package hashmap implements an open-addressed hash table using
// Robin-Hood probing: richer (lower-PSL) entries yield their slot to
// poorer (higher-PSL) new arrivals, which bounds the variance of probe
// lengths. Capacity is always a power of two; the table grows at a
// 0.75 load factor and shrinks at 0.10 (never below its configured
// minimum).
//
// Go generics let this express the arbitrary-item-bytes-plus-comparator
// contract of the C original as a type parameter and an equality
// constraint instead of elsize/memcpy/comparator-function plumbing.
package hashmap

// entry is one bucket. psl == 0 means the bucket is empty; psl >= 1 is
// the probe-sequence length (1 = home bucket). hash has its top 16 bits
// cleared, mirroring the C original's habit of packing hash48+psl16 into
// one word - kept here for fidelity even though Go buckets don't need
// the bit-packing to save memory.
type entry[K comparable, V any] struct {
	hash uint64
	psl  uint16
	key  K
	val  V
}

// Map is a Robin-Hood open-addressed hash table from K to V.
type Map[K comparable, V any] struct {
	hash     func(K) uint64
	buckets  []entry[K, V]
	count    int
	mask     uint64
	minCap   int
	growAt   int
	shrinkAt int
	oom      bool
}

const defaultMinCap = 16

// New creates a table with the given hash function and a minimum
// capacity (rounded up to the next power of two, floor 16). The table
// never shrinks below this capacity.
func New[K comparable, V any](hash func(K) uint64, minCap int) *Map[K, V] {
	cap := nextPow2(minCap)
	m := &Map[K, V]{
		hash:    hash,
		buckets: make([]entry[K, V], cap),
		mask:    uint64(cap - 1),
		minCap:  cap,
	}
	m.growAt = cap * 3 / 4
	m.shrinkAt = cap / 10
	return m
}

func nextPow2(n int) int {
	c := defaultMinCap
	for c < n {
		c *= 2
	}
	return c
}

// mangle clears the top 16 bits of a hash, matching the C original's
// get_hash (map->hash(key) << 16 >> 16).
func mangle(h uint64) uint64 {
	return h << 16 >> 16
}

// Count returns the number of items currently stored.
func (m *Map[K, V]) Count() int { return m.count }

// OOM reports whether the most recent Set failed to grow the table for
// lack of memory. The table remains fully usable; the item was not
// inserted.
func (m *Map[K, V]) OOM() bool { return m.oom }

// Set inserts or replaces the value for key. It returns the previous
// value and true if key was already present.
func (m *Map[K, V]) Set(key K, val V) (V, bool) {
	m.oom = false
	if m.count == m.growAt {
		if !m.resize(len(m.buckets) * 2) {
			m.oom = true
			var zero V
			return zero, false
		}
	}

	eh := mangle(m.hash(key))
	ekey := key
	eval := val
	epsl := uint16(1)
	i := eh & m.mask
	for {
		b := &m.buckets[i]
		if b.psl == 0 {
			b.hash, b.psl, b.key, b.val = eh, epsl, ekey, eval
			m.count++
			var zero V
			return zero, false
		}
		if b.hash == eh && b.key == ekey {
			old := b.val
			b.val = eval
			return old, true
		}
		if b.psl < epsl {
			eh, b.hash = b.hash, eh
			epsl, b.psl = b.psl, epsl
			ekey, b.key = b.key, ekey
			eval, b.val = b.val, eval
		}
		i = (i + 1) & m.mask
		epsl++
	}
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	h := mangle(m.hash(key))
	i := h & m.mask
	for {
		b := &m.buckets[i]
		if b.psl == 0 {
			var zero V
			return zero, false
		}
		if b.hash == h && b.key == key {
			return b.val, true
		}
		i = (i + 1) & m.mask
	}
}

// Has reports whether key is present, without copying its value.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key and returns its value and whether it was present.
// The vacated slot is backfilled by shifting later entries of the same
// probe chain backward, preserving the PSL invariant.
func (m *Map[K, V]) Delete(key K) (V, bool) {
	m.oom = false
	h := mangle(m.hash(key))
	i := h & m.mask
	for {
		b := &m.buckets[i]
		if b.psl == 0 {
			var zero V
			return zero, false
		}
		if b.hash == h && b.key == key {
			old := b.val
			hole := i
			for {
				next := (hole + 1) & m.mask
				nb := &m.buckets[next]
				if nb.psl <= 1 {
					m.buckets[hole] = entry[K, V]{}
					break
				}
				m.buckets[hole] = *nb
				m.buckets[hole].psl--
				hole = next
			}
			m.count--
			if len(m.buckets) > m.minCap && m.count <= m.shrinkAt {
				// Shrink failure is ignored: it never corrupts data,
				// it just forgoes reclaiming memory.
				m.resize(len(m.buckets) / 2)
			}
			return old, true
		}
		i = (i + 1) & m.mask
	}
}

// Probe returns the entry stored at position, modulo the table's
// current bucket count.
func (m *Map[K, V]) Probe(position uint64) (key K, val V, ok bool) {
	i := position & m.mask
	b := &m.buckets[i]
	if b.psl == 0 {
		return key, val, false
	}
	return b.key, b.val, true
}

// Scan visits every entry in storage order, stopping early if iter
// returns false. It returns false iff iteration was stopped early.
func (m *Map[K, V]) Scan(iter func(key K, val V) bool) bool {
	for i := range m.buckets {
		b := &m.buckets[i]
		if b.psl != 0 {
			if !iter(b.key, b.val) {
				return false
			}
		}
	}
	return true
}

func (m *Map[K, V]) resize(newCap int) bool {
	if newCap < m.minCap {
		newCap = m.minCap
	}
	next := make([]entry[K, V], newCap)
	nmask := uint64(newCap - 1)
	for i := range m.buckets {
		e := m.buckets[i]
		if e.psl == 0 {
			continue
		}
		e.psl = 1
		j := e.hash & nmask
		for {
			b := &next[j]
			if b.psl == 0 {
				*b = e
				break
			}
			if b.psl < e.psl {
				*b, e = e, *b
			}
			j = (j + 1) & nmask
			e.psl++
		}
	}
	m.buckets = next
	m.mask = nmask
	m.growAt = newCap * 3 / 4
	m.shrinkAt = newCap / 10
	return true
}
