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

package hashmap

import (
	"math/rand"
	"testing"
)

// splitmix64 is a cheap, well-distributed mixer for the int keys these
// tests use; a plain identity hash would pack buckets into linear runs
// and make the PSL assertions trivially and uninterestingly true.
func splitmix64(x uint64) func(int) uint64 {
	_ = x
	return func(k int) uint64 {
		z := uint64(k) + 0x9E3779B97f4A7C15
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
}

func newTestMap() *Map[int, int] {
	return New[int, int](splitmix64(0), 16)
}

// checkInvariants walks every bucket and verifies the PSL relation from
// spec §8: for every non-empty bucket i holding hash h, psl ==
// ((i - (h & mask)) mod n) + 1. Also checks load factor <= 0.75.
func checkInvariants(t *testing.T, m *Map[int, int]) {
	t.Helper()
	n := uint64(len(m.buckets))
	for i, b := range m.buckets {
		if b.psl == 0 {
			continue
		}
		home := b.hash & m.mask
		want := uint16(((uint64(i)-home)%n+n)%n) + 1
		if b.psl != want {
			t.Fatalf("bucket %d: psl=%d want=%d (home=%d hash=%d)", i, b.psl, want, home, b.hash)
		}
	}
	if float64(m.count) > 0.75*float64(n) {
		t.Fatalf("load factor exceeded 0.75: count=%d n=%d", m.count, n)
	}
}

func TestCountMatchesDistinctInsertedKeys(t *testing.T) {
	m := newTestMap()
	keys := rand.New(rand.NewSource(1)).Perm(500)
	seen := map[int]bool{}
	for _, k := range keys {
		m.Set(k, k*2)
		seen[k] = true
		checkInvariants(t, m)
	}
	if m.Count() != len(seen) {
		t.Fatalf("count=%d want=%d", m.Count(), len(seen))
	}
}

func TestGetReturnsMostRecentSet(t *testing.T) {
	m := newTestMap()
	m.Set(7, 100)
	m.Set(7, 200)
	v, ok := m.Get(7)
	if !ok || v != 200 {
		t.Fatalf("got (%d,%v), want (200,true)", v, ok)
	}
	old, had := m.Set(7, 300)
	if !had || old != 200 {
		t.Fatalf("Set replace returned (%d,%v), want (200,true)", old, had)
	}
}

func TestDeleteThenGetAbsent(t *testing.T) {
	m := newTestMap()
	for i := 0; i < 40; i++ {
		m.Set(i, i)
	}
	for i := 0; i < 40; i += 2 {
		v, ok := m.Delete(i)
		if !ok || v != i {
			t.Fatalf("Delete(%d) = (%d,%v)", i, v, ok)
		}
		checkInvariants(t, m)
	}
	for i := 0; i < 40; i++ {
		_, ok := m.Get(i)
		if i%2 == 0 && ok {
			t.Fatalf("key %d should be absent after delete", i)
		}
		if i%2 == 1 && !ok {
			t.Fatalf("key %d should still be present", i)
		}
	}
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	m := newTestMap()
	m.Set(1, 1)
	if _, ok := m.Delete(999); ok {
		t.Fatalf("deleting absent key reported present")
	}
	if m.Count() != 1 {
		t.Fatalf("count changed after deleting absent key: %d", m.Count())
	}
}

func TestGrowShrinkNeverLosesEntries(t *testing.T) {
	m := newTestMap()
	r := rand.New(rand.NewSource(2))
	present := map[int]int{}

	for step := 0; step < 4000; step++ {
		k := r.Intn(300)
		if r.Intn(3) == 0 {
			if v, ok := present[k]; ok {
				dv, ok2 := m.Delete(k)
				if !ok2 || dv != v {
					t.Fatalf("step %d: Delete(%d) = (%d,%v), want (%d,true)", step, k, dv, ok2, v)
				}
				delete(present, k)
			} else {
				if _, ok := m.Delete(k); ok {
					t.Fatalf("step %d: Delete(%d) unexpectedly present", step, k)
				}
			}
		} else {
			m.Set(k, step)
			present[k] = step
		}
		if step%97 == 0 {
			checkInvariants(t, m)
		}
	}

	if m.Count() != len(present) {
		t.Fatalf("final count=%d want=%d", m.Count(), len(present))
	}
	for k, v := range present {
		got, ok := m.Get(k)
		if !ok || got != v {
			t.Fatalf("final Get(%d) = (%d,%v), want (%d,true)", k, got, ok, v)
		}
	}
	checkInvariants(t, m)
}

func TestScanVisitsEveryEntryAndCanStopEarly(t *testing.T) {
	m := newTestMap()
	want := map[int]int{}
	for i := 0; i < 30; i++ {
		m.Set(i, i*i)
		want[i] = i * i
	}
	got := map[int]int{}
	m.Scan(func(k, v int) bool {
		got[k] = v
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("scan visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("scan entry %d = %d, want %d", k, got[k], v)
		}
	}

	count := 0
	m.Scan(func(k, v int) bool {
		count++
		return count < 5
	})
	if count != 5 {
		t.Fatalf("scan did not stop early: visited %d, want 5", count)
	}
}

func TestProbeMatchesBucketContents(t *testing.T) {
	m := newTestMap()
	for i := 0; i < 20; i++ {
		m.Set(i, i)
	}
	for pos := uint64(0); pos < uint64(len(m.buckets)); pos++ {
		k, v, ok := m.Probe(pos)
		b := m.buckets[pos&m.mask]
		if ok != (b.psl != 0) {
			t.Fatalf("probe(%d) ok=%v, bucket psl=%d", pos, ok, b.psl)
		}
		if ok && (k != b.key || v != b.val) {
			t.Fatalf("probe(%d) = (%d,%d), bucket has (%d,%d)", pos, k, v, b.key, b.val)
		}
	}
}

func TestMinimumCapacityFloor(t *testing.T) {
	m := New[int, int](splitmix64(0), 1)
	if len(m.buckets) != defaultMinCap {
		t.Fatalf("capacity floor not applied: got %d, want %d", len(m.buckets), defaultMinCap)
	}
	m2 := New[int, int](splitmix64(0), 100)
	if len(m2.buckets) != 128 {
		t.Fatalf("capacity not rounded to next power of two: got %d, want 128", len(m2.buckets))
	}
}
