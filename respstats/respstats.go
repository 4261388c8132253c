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

// Package respstats publishes a snapshot of per-connection counters that
// a goroutine other than the reactor's own can read without blocking
// it, and without the reactor blocking on a lock to publish. It is
// built directly on internal/nbmap, the adapted NonLockingReadMap.
package respstats

import (
	"time"

	"github.com/google/uuid"

	"github.com/launix-de/respd/internal/nbmap"
	"github.com/launix-de/respd/reactor"
)

// Record is one connection's published counters at the moment of the
// last Open, Update or PublishAll call that touched it.
type Record struct {
	ID           uuid.UUID
	Addr         string
	BytesRead    uint64
	BytesWritten uint64
	OpenedAt     time.Time
}

// GetKey implements nbmap.KeyedValue, keyed by the connection's string
// id so Record can live in an nbmap.Map without the [16]byte array key
// nbmap.KeyedValue's cmp.Ordered constraint would otherwise reject.
func (r Record) GetKey() string { return r.ID.String() }

// Snapshot is a live, concurrently-readable table of Records. Create
// one with NewSnapshot; the zero value is not ready for use.
type Snapshot struct {
	m nbmap.Map[Record, string]
}

// NewSnapshot returns an empty, ready-to-use Snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{m: nbmap.New[Record, string]()}
}

// Open publishes a fresh Record for a newly opened connection. It pairs
// with Remove in a server.Callbacks.Opened/Closed pair, and with Update
// or PublishAll from a Command or Tick hook for later counter changes,
// e.g.:
//
//	stats := respstats.NewSnapshot()
//	Opened: func(c *server.Conn) { stats.Open(c.ID(), c.Addr(), time.Now()) }
//	Closed: func(c *server.Conn) { stats.Remove(c.ID()) }
//	Tick:   func() int64 { stats.PublishAll(reactorConns()); return -1 }
func (s *Snapshot) Open(id uuid.UUID, addr string, openedAt time.Time) {
	s.m.Set(&Record{ID: id, Addr: addr, OpenedAt: openedAt})
}

// Remove deletes id's record, e.g. on connection close.
func (s *Snapshot) Remove(id uuid.UUID) {
	s.m.Remove(id.String())
}

// Update republishes conn's current byte counters, preserving the
// OpenedAt stamp recorded at Open time.
func (s *Snapshot) Update(id uuid.UUID, addr string, bytesRead, bytesWritten uint64) {
	prev := s.m.Get(id.String())
	openedAt := time.Time{}
	if prev != nil {
		openedAt = prev.OpenedAt
	}
	s.m.Set(&Record{
		ID:           id,
		Addr:         addr,
		BytesRead:    bytesRead,
		BytesWritten: bytesWritten,
		OpenedAt:     openedAt,
	})
}

// PublishAll republishes a Record for every connection the reactor
// currently holds open, in one pass - the shape a Tick callback would
// call once per loop iteration.
func (s *Snapshot) PublishAll(conns []*reactor.Conn) {
	for _, c := range conns {
		s.Update(c.ID(), c.Addr(), c.BytesRead(), c.BytesWritten())
	}
}

// All returns every currently-published Record. The caller must not
// mutate the returned values. Open of a new id and Remove install a
// fresh set; Update of an existing id replaces its entry in place.
func (s *Snapshot) All() []*Record {
	return s.m.All()
}

// Len returns the number of currently-published records.
func (s *Snapshot) Len() int {
	return s.m.Len()
}

// Get returns the published record for id, or nil if absent.
func (s *Snapshot) Get(id uuid.UUID) *Record {
	return s.m.Get(id.String())
}
