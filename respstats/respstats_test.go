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

package respstats

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOpenUpdateRemoveRoundTrip(t *testing.T) {
	s := NewSnapshot()
	id := uuid.New()
	opened := time.Now()
	s.Open(id, "tcp://127.0.0.1:1", opened)

	got := s.Get(id)
	if got == nil {
		t.Fatalf("expected record after Open")
	}
	if got.Addr != "tcp://127.0.0.1:1" || !got.OpenedAt.Equal(opened) {
		t.Fatalf("unexpected record: %+v", got)
	}

	s.Update(id, "tcp://127.0.0.1:1", 10, 20)
	got = s.Get(id)
	if got.BytesRead != 10 || got.BytesWritten != 20 {
		t.Fatalf("unexpected counters after Update: %+v", got)
	}
	if !got.OpenedAt.Equal(opened) {
		t.Fatalf("OpenedAt should survive Update, got %v want %v", got.OpenedAt, opened)
	}

	s.Remove(id)
	if got := s.Get(id); got != nil {
		t.Fatalf("expected nil after Remove, got %+v", got)
	}
}

func TestAllReflectsConcurrentWrites(t *testing.T) {
	s := NewSnapshot()
	const n = 50
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for _, id := range ids {
		go func(id uuid.UUID) {
			defer wg.Done()
			s.Open(id, "tcp://x", time.Now())
		}(id)
	}
	wg.Wait()

	if got := s.Len(); got != n {
		t.Fatalf("got %d records, want %d", got, n)
	}
	if got := len(s.All()); got != n {
		t.Fatalf("All() returned %d records, want %d", got, n)
	}
}

func TestReadersNeverBlockOnWriter(t *testing.T) {
	s := NewSnapshot()
	id := uuid.New()
	s.Open(id, "tcp://x", time.Now())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.Update(id, "tcp://x", uint64(i), uint64(i))
		}
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatalf("reader loop did not observe writer finishing in time")
		default:
			_ = s.All()
		}
	}
}
